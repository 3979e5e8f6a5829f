package telemetry

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// respServer is an in-process Redis speaking RESP2. It implements the hash,
// expiry and transaction commands the publisher uses and records every
// transaction it executes.
type respServer struct {
	ln net.Listener
	wg sync.WaitGroup

	mu     sync.Mutex
	hashes map[string]map[string]string
	ttls   map[string]time.Duration
	txs    [][]string
	conns  map[net.Conn]struct{}
}

func startRESPServer(t *testing.T) *respServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &respServer{
		ln:     ln,
		hashes: make(map[string]map[string]string),
		ttls:   make(map[string]time.Duration),
		conns:  make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.accept()
	t.Cleanup(s.Close)
	return s
}

func (s *respServer) Addr() string { return s.ln.Addr().String() }

// Close stops accepting, drops open connections and waits for handlers.
func (s *respServer) Close() {
	s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Transactions returns the commands of every executed MULTI/EXEC block,
// each rendered as space-joined arguments with the name upper-cased.
func (s *respServer) Transactions() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.txs))
	copy(out, s.txs)
	return out
}

// Hash returns a copy of the hash at key.
func (s *respServer) Hash(key string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out
}

// TTL returns the expiry last set on key.
func (s *respServer) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.ttls[key]
	return d, ok
}

func (s *respServer) accept() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(c)
	}
}

func (s *respServer) serve(c net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		c.Close()
	}()

	rd := bufio.NewReader(c)
	w := bufio.NewWriter(c)
	var queued [][]string
	inTx := false

	for {
		args, err := readCommand(rd)
		if err != nil {
			return
		}
		name := strings.ToUpper(args[0])

		switch {
		case name == "MULTI":
			inTx, queued = true, nil
			w.WriteString("+OK\r\n")
		case name == "EXEC":
			replies := make([]string, len(queued))
			rendered := make([]string, len(queued))
			s.mu.Lock()
			for i, cmd := range queued {
				replies[i] = s.execLocked(cmd)
				rendered[i] = strings.ToUpper(cmd[0]) + " " + strings.Join(cmd[1:], " ")
			}
			s.txs = append(s.txs, rendered)
			s.mu.Unlock()
			fmt.Fprintf(w, "*%d\r\n", len(replies))
			for _, r := range replies {
				w.WriteString(r)
			}
			inTx, queued = false, nil
		case inTx:
			queued = append(queued, args)
			w.WriteString("+QUEUED\r\n")
		default:
			s.mu.Lock()
			reply := s.execLocked(args)
			s.mu.Unlock()
			w.WriteString(reply)
		}

		// Pipelined commands arrive together; answer them in one write.
		if rd.Buffered() == 0 {
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}

// execLocked runs one command and returns its encoded reply.
func (s *respServer) execLocked(args []string) string {
	switch strings.ToUpper(args[0]) {
	case "PING":
		return "+PONG\r\n"
	case "CLIENT", "SELECT":
		return "+OK\r\n"
	case "DEL":
		n := 0
		for _, key := range args[1:] {
			if _, ok := s.hashes[key]; ok {
				n++
			}
			delete(s.hashes, key)
			delete(s.ttls, key)
		}
		return integer(n)
	case "HSET":
		if len(args) < 4 || len(args)%2 != 0 {
			return "-ERR wrong number of arguments for 'hset' command\r\n"
		}
		h, ok := s.hashes[args[1]]
		if !ok {
			h = make(map[string]string)
			s.hashes[args[1]] = h
		}
		added := 0
		for i := 2; i < len(args); i += 2 {
			if _, exists := h[args[i]]; !exists {
				added++
			}
			h[args[i]] = args[i+1]
		}
		return integer(added)
	case "PEXPIRE":
		if _, ok := s.hashes[args[1]]; !ok {
			return integer(0)
		}
		ms, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return "-ERR value is not an integer or out of range\r\n"
		}
		s.ttls[args[1]] = time.Duration(ms) * time.Millisecond
		return integer(1)
	case "PTTL":
		if _, ok := s.hashes[args[1]]; !ok {
			return integer(-2)
		}
		d, ok := s.ttls[args[1]]
		if !ok {
			return integer(-1)
		}
		return integer(int(d.Milliseconds()))
	case "HGETALL":
		h := s.hashes[args[1]]
		var b strings.Builder
		fmt.Fprintf(&b, "*%d\r\n", 2*len(h))
		for k, v := range h {
			fmt.Fprintf(&b, "$%d\r\n%s\r\n$%d\r\n%s\r\n", len(k), k, len(v), v)
		}
		return b.String()
	default:
		return fmt.Sprintf("-ERR unknown command '%s'\r\n", args[0])
	}
}

func integer(n int) string { return ":" + strconv.Itoa(n) + "\r\n" }

// readCommand reads one RESP array of bulk strings.
func readCommand(rd *bufio.Reader) ([]string, error) {
	line, err := readLine(rd)
	if err != nil {
		return nil, err
	}
	if len(line) == 0 || line[0] != '*' {
		return nil, fmt.Errorf("unexpected request %q", line)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("bad array header %q", line)
	}

	args := make([]string, n)
	for i := range args {
		line, err := readLine(rd)
		if err != nil {
			return nil, err
		}
		if len(line) == 0 || line[0] != '$' {
			return nil, fmt.Errorf("unexpected argument header %q", line)
		}
		size, err := strconv.Atoi(line[1:])
		if err != nil || size < 0 {
			return nil, fmt.Errorf("bad bulk header %q", line)
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(rd, buf); err != nil {
			return nil, err
		}
		args[i] = string(buf[:size])
	}
	return args, nil
}

func readLine(rd *bufio.Reader) (string, error) {
	line, err := rd.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
