package pktscript

import (
	"fmt"
	"sort"
)

// ConnectedSocket opens a TCP socket, completes the three-way handshake and
// leaves the connection established.
const ConnectedSocket = `0 socket(..., SOCK_STREAM, IPPROTO_TCP) = 3
0.0...0.1 connect(3, ..., ...) = 0
*  > S  0:0(0) <...>
+0 < S. 0:0(0) ack 1 win 1000
*  > .  1:1(0) ack 1
`

var builtins = map[string]string{
	"connected_socket": ConnectedSocket,
}

// Builtin returns the bundled script called name.
func Builtin(name string) (string, error) {
	s, ok := builtins[name]
	if !ok {
		return "", fmt.Errorf("unknown builtin packet script %q (have %v)", name, BuiltinNames())
	}
	return s, nil
}

// BuiltinNames lists the bundled scripts.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
