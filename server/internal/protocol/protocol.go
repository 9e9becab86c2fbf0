package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/phuhao00/worldsync/server/internal/model"
)

// Operation tokens. Each is exactly OpSize bytes and sits right after the
// timestamp separator.
const (
	OpLogin     = "L1;"
	OpMove      = "M0;"
	OpSync      = "S0;"
	OpBroadcast = "P0;"
	OpExit      = "E0;"

	OpSize    = 3
	Separator = ";"
)

// DefaultFreshnessWindow is how old a frame timestamp may be before the frame
// is dropped.
const DefaultFreshnessWindow = 100 * time.Second

// Player types carried by a login.
const (
	PlayerTypePlayer   = "player"
	PlayerTypeObserver = "observer"
)

// Direction codes carried by M0 frames.
const (
	DirUp    uint8 = 0
	DirRight uint8 = 1
	DirDown  uint8 = 2
	DirLeft  uint8 = 3
	DirStop  uint8 = 4
)

var (
	ErrMalformed = errors.New("protocol: malformed frame")
	ErrStale     = errors.New("protocol: stale frame")
	ErrUnknownOp = errors.New("protocol: unknown operation")
)

// CommandType discriminates decoded commands.
type CommandType int

const (
	CommandLogin CommandType = iota + 1
	CommandMove
	CommandStop
	CommandExit
)

func (t CommandType) String() string {
	switch t {
	case CommandLogin:
		return "login"
	case CommandMove:
		return "move"
	case CommandStop:
		return "stop"
	case CommandExit:
		return "exit"
	default:
		return "unknown"
	}
}

// CommandContext holds the per-type fields. Fields a command type does not
// use stay at their zero value.
type CommandContext struct {
	PlayerID   string
	Direction  uint8
	PlayerType string
	Skin       uint8
}

// Command is one decoded client intent.
type Command struct {
	Timestamp int64
	Type      CommandType
	Context   CommandContext
}

// PositionReport is an externally computed position pushed over the sync channel.
type PositionReport struct {
	PlayerID string
	Position model.Point
}

// Decode parses a primary-channel datagram. Frames whose timestamp is at or
// before now-window are rejected with ErrStale.
func Decode(buf []byte, now time.Time, window time.Duration) (Command, error) {
	var zero Command
	if !utf8.Valid(buf) {
		return zero, fmt.Errorf("%w: invalid utf-8", ErrMalformed)
	}

	sep := bytes.IndexByte(buf, ';')
	if sep <= 0 {
		return zero, fmt.Errorf("%w: missing timestamp", ErrMalformed)
	}
	timestamp, err := strconv.ParseInt(string(buf[:sep]), 10, 64)
	if err != nil {
		return zero, fmt.Errorf("%w: timestamp: %v", ErrMalformed, err)
	}
	if timestamp <= now.Add(-window).Unix() {
		return zero, ErrStale
	}

	rest := buf[sep+1:]
	if len(rest) < OpSize {
		return zero, fmt.Errorf("%w: missing operation", ErrMalformed)
	}
	op := string(rest[:OpSize])
	fields := strings.Split(string(rest[OpSize:]), Separator)

	switch op {
	case OpLogin:
		return decodeLogin(timestamp, fields)
	case OpMove:
		return decodeMove(timestamp, fields)
	case OpExit:
		return Command{Timestamp: timestamp, Type: CommandExit}, nil
	default:
		return zero, fmt.Errorf("%w: %q", ErrUnknownOp, op)
	}
}

func decodeLogin(timestamp int64, fields []string) (Command, error) {
	if len(fields) < 3 || fields[0] == "" {
		return Command{}, fmt.Errorf("%w: login needs playerId;skin;playerType", ErrMalformed)
	}
	skin, err := strconv.ParseUint(fields[1], 10, 8)
	if err != nil {
		return Command{}, fmt.Errorf("%w: skin: %v", ErrMalformed, err)
	}
	return Command{
		Timestamp: timestamp,
		Type:      CommandLogin,
		Context: CommandContext{
			PlayerID:   fields[0],
			Skin:       uint8(skin),
			PlayerType: fields[2],
		},
	}, nil
}

func decodeMove(timestamp int64, fields []string) (Command, error) {
	if len(fields) < 2 || fields[0] == "" {
		return Command{}, fmt.Errorf("%w: move needs playerId;direction", ErrMalformed)
	}
	direction, err := strconv.ParseUint(fields[1], 10, 8)
	if err != nil || direction > uint64(DirStop) {
		return Command{}, fmt.Errorf("%w: direction %q", ErrMalformed, fields[1])
	}
	cmdType := CommandMove
	if uint8(direction) == DirStop {
		cmdType = CommandStop
	}
	return Command{
		Timestamp: timestamp,
		Type:      cmdType,
		Context: CommandContext{
			PlayerID:  fields[0],
			Direction: uint8(direction),
		},
	}, nil
}

// EncodeBroadcast renders the P0 frame for a player map.
func EncodeBroadcast(players map[string]model.Player) ([]byte, error) {
	if players == nil {
		players = map[string]model.Player{}
	}
	payload, err := json.Marshal(players)
	if err != nil {
		return nil, fmt.Errorf("encode broadcast: %w", err)
	}
	frame := make([]byte, 0, OpSize+len(payload))
	frame = append(frame, OpBroadcast...)
	return append(frame, payload...), nil
}

// DecodeBroadcast parses a P0 frame back into the player map.
func DecodeBroadcast(frame []byte) (map[string]model.Player, error) {
	if !bytes.HasPrefix(frame, []byte(OpBroadcast)) {
		return nil, fmt.Errorf("%w: not a broadcast frame", ErrUnknownOp)
	}
	players := map[string]model.Player{}
	if err := json.Unmarshal(frame[OpSize:], &players); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return players, nil
}

func frame(timestamp int64, op string, fields ...string) []byte {
	return []byte(strconv.FormatInt(timestamp, 10) + Separator + op + strings.Join(fields, Separator))
}

// EncodeLogin builds an L1 frame.
func EncodeLogin(timestamp int64, playerID string, skin uint8, playerType string) []byte {
	return frame(timestamp, OpLogin, playerID, strconv.Itoa(int(skin)), playerType)
}

// EncodeMove builds an M0 frame. DirStop produces a stop.
func EncodeMove(timestamp int64, playerID string, direction uint8) []byte {
	return frame(timestamp, OpMove, playerID, strconv.Itoa(int(direction)))
}

// EncodeExit builds the E0 control frame.
func EncodeExit(timestamp int64) []byte {
	return frame(timestamp, OpExit)
}
