//go:build !unix

package monitor

// childUsage reports nothing on platforms without child accounting;
// the sample then reflects live inspection of the current process only.
func childUsage() (ChildUsage, error) {
	return ChildUsage{}, nil
}
