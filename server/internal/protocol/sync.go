package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/phuhao00/worldsync/server/internal/model"
	"github.com/tidwall/gjson"
)

// DecodePositionReport parses a sync-channel datagram of the form
// <ignored>;<ignored>;<playerId>;<jsonPoint>.
func DecodePositionReport(buf []byte) (PositionReport, error) {
	var zero PositionReport
	if !utf8.Valid(buf) {
		return zero, fmt.Errorf("%w: invalid utf-8", ErrMalformed)
	}
	parts := strings.SplitN(string(buf), Separator, 4)
	if len(parts) < 4 || parts[2] == "" {
		return zero, fmt.Errorf("%w: sync needs playerId and point", ErrMalformed)
	}
	point, err := parsePoint(parts[3])
	if err != nil {
		return zero, err
	}
	return PositionReport{PlayerID: parts[2], Position: point}, nil
}

func parsePoint(raw string) (model.Point, error) {
	if !gjson.Valid(raw) {
		return model.Point{}, fmt.Errorf("%w: point is not json", ErrMalformed)
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return model.Point{}, fmt.Errorf("%w: point is not an object", ErrMalformed)
	}
	x, err := coordinate(doc, "x")
	if err != nil {
		return model.Point{}, err
	}
	y, err := coordinate(doc, "y")
	if err != nil {
		return model.Point{}, err
	}
	return model.Point{X: x, Y: y}, nil
}

func coordinate(doc gjson.Result, key string) (int32, error) {
	field := doc.Get(key)
	if !field.Exists() || field.Type != gjson.Number {
		return 0, fmt.Errorf("%w: point.%s missing", ErrMalformed, key)
	}
	value, err := strconv.ParseInt(field.Raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: point.%s: %v", ErrMalformed, key, err)
	}
	return int32(value), nil
}

// EncodePositionReport builds a sync frame for playerID.
func EncodePositionReport(timestamp int64, playerID string, position model.Point) ([]byte, error) {
	point, err := json.Marshal(position)
	if err != nil {
		return nil, fmt.Errorf("encode position report: %w", err)
	}
	return frame(timestamp, OpSync, playerID, string(point)), nil
}
