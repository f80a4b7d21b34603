//go:build linux

package transport

import (
	"net"

	"golang.org/x/sys/unix"
)

func peerOf(conn *net.UnixConn) Peer {
	raw, err := conn.SyscallConn()
	if err != nil {
		return Peer{}
	}
	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil || credErr != nil || cred == nil {
		return Peer{}
	}
	return Peer{PID: cred.Pid, UID: cred.Uid, Known: true}
}
