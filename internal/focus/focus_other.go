//go:build !windows

package focus

// NewSystemSource returns ErrUnsupported outside Windows. Use the HTTP
// event endpoints to feed the daemon from a platform specific hook.
func NewSystemSource() (Source, error) {
	return nil, ErrUnsupported
}
