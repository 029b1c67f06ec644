//go:build !linux

package privdrop

func Drop(Identity) error {
	return ErrUnsupported
}
