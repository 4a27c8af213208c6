//go:build debug_shadowheap

package memutil

const (
	// DebugFillByte is the pattern written across a block's body when the owning
	// arena releases it. The value is easy to pick out of a hex dump and unlikely
	// to occur in live data.
	DebugFillByte byte = 0xF9
	// DebugFillEnabled reports whether released block bodies are overwritten with
	// DebugFillByte. It is true only when the debug_shadowheap build tag is present.
	DebugFillEnabled = true
)

// DebugFill overwrites the provided bytes with DebugFillByte.
// This method no-ops unless the debug_shadowheap build tag is present.
func DebugFill(data []byte) {
	for i := range data {
		data[i] = DebugFillByte
	}
}

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_shadowheap build tag is present
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and panics if it is not.
// This method no-ops unless the debug_shadowheap build tag is present.
func DebugCheckPow2[T Number](value T, name string) {
	err := CheckPow2[T](value, name)
	if err != nil {
		panic(err)
	}
}
