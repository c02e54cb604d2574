package testutil

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

// FakeRedis 进程内的 RESP 服务，只实现心跳缓存用到的几个命令，不处理过期
type FakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ln   net.Listener
}

// NewFakeRedis 启动服务并返回连到它的客户端，测试结束时关闭
func NewFakeRedis(t *testing.T) (*FakeRedis, *redis.Client) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &FakeRedis{data: make(map[string]string), ln: ln}
	go f.serve()

	client := redis.NewClient(&redis.Options{Addr: ln.Addr().String(), MaxRetries: -1})
	t.Cleanup(func() {
		client.Close()
		ln.Close()
	})
	return f, client
}

// Has 键是否存在
func (f *FakeRedis) Has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

func (f *FakeRedis) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *FakeRedis) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		if _, err := io.WriteString(conn, f.exec(args)); err != nil {
			return
		}
	}
}

func (f *FakeRedis) exec(args []string) string {
	if len(args) == 0 {
		return "-ERR empty command\r\n"
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	switch strings.ToUpper(args[0]) {
	case "PING":
		return "+PONG\r\n"
	case "SET":
		if len(args) < 3 {
			return "-ERR wrong number of arguments for 'set'\r\n"
		}
		f.data[args[1]] = args[2]
		return "+OK\r\n"
	case "SETNX":
		if len(args) != 3 {
			return "-ERR wrong number of arguments for 'setnx'\r\n"
		}
		if _, ok := f.data[args[1]]; ok {
			return ":0\r\n"
		}
		f.data[args[1]] = args[2]
		return ":1\r\n"
	case "EXISTS", "DEL":
		n := 0
		for _, key := range args[1:] {
			if _, ok := f.data[key]; ok {
				n++
				if strings.EqualFold(args[0], "DEL") {
					delete(f.data, key)
				}
			}
		}
		return ":" + strconv.Itoa(n) + "\r\n"
	}
	return fmt.Sprintf("-ERR unknown command '%s'\r\n", args[0])
}

// readCommand 读取一条 RESP 数组形式的命令
func readCommand(r *bufio.Reader) ([]string, error) {
	n, err := readLength(r, '*')
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		size, err := readLength(r, '$')
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func readLength(r *bufio.Reader, prefix byte) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 2 || line[0] != prefix {
		return 0, fmt.Errorf("unexpected line %q", line)
	}
	return strconv.Atoi(line[1:])
}
