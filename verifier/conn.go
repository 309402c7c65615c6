package verifier

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// conn wraps a raw SMTP connection with buffered I/O and a per-operation
// deadline.
type conn struct {
	netConn net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	timeout time.Duration
}

func (c *conn) read() (int, string, error) {
	_ = c.netConn.SetDeadline(time.Now().Add(c.timeout))
	return readResponse(c.reader)
}

// command sends an SMTP command and reads the response.
func (c *conn) command(cmd string) (int, string, error) {
	_ = c.netConn.SetDeadline(time.Now().Add(c.timeout))
	if _, err := c.writer.WriteString(cmd); err != nil {
		return 0, "", err
	}
	if err := c.writer.Flush(); err != nil {
		return 0, "", err
	}
	return readResponse(c.reader)
}

// sendQuit sends a QUIT command (best-effort, ignores errors).
func sendQuit(c *conn) {
	_ = c.netConn.SetDeadline(time.Now().Add(2 * time.Second))
	_, _ = c.writer.WriteString("QUIT\r\n")
	_ = c.writer.Flush()
}

// readResponse reads a (possibly multi-line) SMTP response.
func readResponse(r *bufio.Reader) (code int, full string, err error) {
	var lines []string
	for {
		line, readErr := r.ReadString('\n')
		if readErr != nil {
			return 0, "", fmt.Errorf("read SMTP response: %w", readErr)
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			return 0, "", errors.New("SMTP response line too short")
		}
		lines = append(lines, line)
		// If the 4th character is not '-', this is the last line
		if len(line) < 4 || line[3] != '-' {
			break
		}
	}

	lastLine := lines[len(lines)-1]
	if _, err := fmt.Sscanf(lastLine[:3], "%d", &code); err != nil {
		return 0, "", fmt.Errorf("invalid SMTP response code %q: %w", lastLine[:3], err)
	}
	return code, strings.Join(lines, " | "), nil
}
