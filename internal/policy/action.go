package policy

import (
	"fmt"
	"strconv"
)

// Op classifies what an operation wants to do to the outside world.
type Op uint8

const (
	OpReadFile Op = iota + 1
	OpWriteFile
	OpHTTP
	OpTCPConnect
	OpTCPListen
	OpUDPBind
	OpUnixConnect
	OpUnixListen
	OpExec
	OpEnvGet
)

// Action is one concrete thing a plan node wants permission for. Nodes that
// touch several resources (copy_file, move_file) emit one action per resource.
type Action struct {
	Op      Op
	Path    string
	URL     string
	Method  string
	Host    string
	Port    int
	Command string
	Name    string
}

func ReadFile(path string) Action    { return Action{Op: OpReadFile, Path: path} }
func WriteFile(path string) Action   { return Action{Op: OpWriteFile, Path: path} }
func UnixConnect(path string) Action { return Action{Op: OpUnixConnect, Path: path} }
func UnixListen(path string) Action  { return Action{Op: OpUnixListen, Path: path} }
func Exec(command string) Action     { return Action{Op: OpExec, Command: command} }
func EnvGet(name string) Action      { return Action{Op: OpEnvGet, Name: name} }

func HTTP(method, url string) Action {
	return Action{Op: OpHTTP, Method: method, URL: url}
}

func TCPConnect(host string, port int) Action {
	return Action{Op: OpTCPConnect, Host: host, Port: port}
}

func TCPListen(host string, port int) Action {
	return Action{Op: OpTCPListen, Host: host, Port: port}
}

func UDPBind(host string, port int) Action {
	return Action{Op: OpUDPBind, Host: host, Port: port}
}

func (a Action) String() string {
	switch a.Op {
	case OpReadFile:
		return "read " + a.Path
	case OpWriteFile:
		return "write " + a.Path
	case OpHTTP:
		return "http " + a.Method + " " + a.URL
	case OpTCPConnect:
		return "tcp connect " + hostPort(a.Host, a.Port)
	case OpTCPListen:
		return "tcp listen " + hostPort(a.Host, a.Port)
	case OpUDPBind:
		return "udp bind " + hostPort(a.Host, a.Port)
	case OpUnixConnect:
		return "unix connect " + a.Path
	case OpUnixListen:
		return "unix listen " + a.Path
	case OpExec:
		return "exec " + a.Command
	case OpEnvGet:
		return "env " + a.Name
	default:
		return fmt.Sprintf("unknown action %d", a.Op)
	}
}

func hostPort(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}
