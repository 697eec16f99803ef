package poller

import "golang.org/x/sys/unix"

func socketpair() ([2]int, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return [2]int{}, err
	}
	return [2]int{fds[0], fds[1]}, nil
}

func writeFD(fd int, b []byte) (int, error) {
	return unix.Write(fd, b)
}
