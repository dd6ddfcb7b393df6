package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
)

var ErrInvalidHost = errors.New("the server IP address is not valid")

// Prompt asks for the server IP address and port on out, reading answers
// from in. An invalid IP is an error; an invalid port is asked again.
func Prompt(in *bufio.Reader, out io.Writer) (string, int, error) {
	fmt.Fprint(out, "Server IP address: ")
	host, err := readLine(in)
	if err != nil {
		return "", 0, err
	}
	if net.ParseIP(host) == nil {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}

	for {
		fmt.Fprint(out, "Server port: ")
		line, err := readLine(in)
		if err != nil {
			return "", 0, err
		}
		if port, ok := ParsePort(line); ok {
			return host, port, nil
		}
		fmt.Fprintln(out, "The port is not valid. Please try again.")
	}
}

// ParsePort parses a TCP port in the range 1..65535.
func ParsePort(s string) (int, bool) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return port, true
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
