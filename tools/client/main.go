package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var directions = map[string]string{"up": "0", "right": "1", "down": "2", "left": "3"}

func main() {
	var host = flag.String("host", "127.0.0.1", "Server host")
	var port = flag.Int("port", 8877, "Server command port")
	var quiet = flag.Bool("quiet", false, "Do not print broadcasts")
	flag.Parse()

	server, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", *host, *port))
	if err != nil {
		log.Fatalf("Failed to resolve server: %v", err)
	}
	sendConn, recvConn, err := bindPair()
	if err != nil {
		log.Fatalf("Failed to bind client sockets: %v", err)
	}
	defer sendConn.Close()
	defer recvConn.Close()

	fmt.Printf("Sending to %s from %s, broadcasts on %s\n", server, sendConn.LocalAddr(), recvConn.LocalAddr())
	fmt.Println("Commands: login <id> [skin] [player|observer], move <id> <up|right|down|left|0-3>, stop <id>, shutdown")
	fmt.Println("Type 'exit' to quit the client")

	if !*quiet {
		go printBroadcasts(recvConn)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "exit" {
			break
		}
		if input == "" {
			continue
		}
		frame, err := buildFrame(time.Now().Unix(), strings.Fields(input))
		if err != nil {
			fmt.Println(err)
			continue
		}
		if _, err := sendConn.WriteToUDP([]byte(frame), server); err != nil {
			fmt.Printf("Failed to send: %v\n", err)
		}
	}
	fmt.Println("Goodbye!")
}

// bindPair binds a send socket and a receive socket on the send port + 1,
// which is where the server broadcasts by default.
func bindPair() (*net.UDPConn, *net.UDPConn, error) {
	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		sendConn, err := net.ListenUDP("udp", &net.UDPAddr{})
		if err != nil {
			return nil, nil, err
		}
		port := sendConn.LocalAddr().(*net.UDPAddr).Port
		recvConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port + 1})
		if err == nil {
			return sendConn, recvConn, nil
		}
		lastErr = err
		sendConn.Close()
	}
	return nil, nil, lastErr
}

func buildFrame(ts int64, args []string) (string, error) {
	switch args[0] {
	case "login":
		if len(args) < 2 {
			return "", fmt.Errorf("usage: login <id> [skin] [player|observer]")
		}
		skin, kind := "0", "player"
		if len(args) > 2 {
			skin = args[2]
		}
		if len(args) > 3 {
			kind = args[3]
		}
		return fmt.Sprintf("%d;L1;%s;%s;%s", ts, args[1], skin, kind), nil
	case "move":
		if len(args) != 3 {
			return "", fmt.Errorf("usage: move <id> <direction>")
		}
		dir := args[2]
		if code, ok := directions[dir]; ok {
			dir = code
		}
		return fmt.Sprintf("%d;M0;%s;%s", ts, args[1], dir), nil
	case "stop":
		if len(args) != 2 {
			return "", fmt.Errorf("usage: stop <id>")
		}
		return fmt.Sprintf("%d;M0;%s;4", ts, args[1]), nil
	case "shutdown":
		return fmt.Sprintf("%d;E0;", ts), nil
	default:
		return "", fmt.Errorf("unknown command %q", args[0])
	}
}

func printBroadcasts(conn *net.UDPConn) {
	buf := make([]byte, 64*1024)
	var last []byte
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		frame := buf[:n]
		if !bytes.HasPrefix(frame, []byte("P0;")) || bytes.Equal(frame, last) {
			continue
		}
		last = append(last[:0], frame...)

		body := gjson.ParseBytes(frame[3:])
		var parts []string
		body.ForEach(func(id, player gjson.Result) bool {
			parts = append(parts, fmt.Sprintf("%s@(%d,%d)", id.String(),
				player.Get("pos.x").Int(), player.Get("pos.y").Int()))
			return true
		})
		fmt.Printf("\n[world] %s\n> ", strings.Join(parts, " "))
	}
}
