// Package sockdiscover finds candidate scalopus server processes by
// scanning /proc/net/unix for abstract-namespace sockets matching the
// "scalopus" naming convention. It is Linux-only: /proc/net/unix has no
// portable equivalent.
package sockdiscover

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// AddressSuffix follows the pid in every socket name a Transport listens
// on (see transport.Address), so discovery can tell a scalopus socket
// apart from unrelated abstract sockets in the same listing.
const AddressSuffix = "_scalopus"

// ReadFunc opens the /proc/net/unix table. Tests inject a stub that reads
// canned content instead of the real file, mirroring the Dial/ParseFunc
// injection seam the rest of this codebase uses for anything backed by
// host or kernel state.
type ReadFunc func() (io.ReadCloser, error)

// Discover scans /proc/net/unix (via read) and returns the pid of every
// process advertising a scalopus abstract socket. Entries that cannot be
// parsed as "<pid>_scalopus" are skipped rather than treated as an error:
// the table also lists every other abstract and filesystem socket on the
// host.
func Discover(read ReadFunc) ([]int, error) {
	f, err := read()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pids []int
	seen := make(map[int]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		// Client-side rows report inode 0; only the peer's own sockets count.
		if len(fields) > 6 && fields[6] == "0" {
			continue
		}
		path := fields[len(fields)-1]
		// Abstract sockets are rendered with a leading '@' by the kernel's
		// /proc/net/unix formatter in place of the NUL byte.
		if !strings.HasPrefix(path, "@") {
			continue
		}
		name := strings.TrimPrefix(path, "@")
		pid, ok := parsePID(name)
		if !ok || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pids, nil
}

func parsePID(name string) (int, bool) {
	if !strings.HasSuffix(name, AddressSuffix) {
		return 0, false
	}
	idPart := strings.TrimSuffix(name, AddressSuffix)
	pid, err := strconv.Atoi(idPart)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// ReadProcNetUnix opens the real /proc/net/unix table. This is the
// default ReadFunc production callers use; tests supply their own.
func ReadProcNetUnix() (io.ReadCloser, error) {
	return openProcNetUnix()
}
