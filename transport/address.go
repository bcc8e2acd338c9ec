package transport

import "fmt"

// addressSuffix matches internal/sockdiscover.AddressSuffix; duplicated as
// a literal here rather than imported so this package has no dependency
// on the discovery internals it is itself discovered through.
const addressSuffix = "_scalopus"

// Address returns the abstract Unix domain socket name a Transport for
// process pid listens on. Go's net package accepts a leading NUL byte in
// a "unix" network address to request the Linux abstract namespace; the
// name itself (after the NUL) is what shows up, prefixed with '@', in
// /proc/net/unix.
func Address(pid int) string {
	return fmt.Sprintf("%c%d%s", 0, pid, addressSuffix)
}
