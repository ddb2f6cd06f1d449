package common

// Virtual key codes delivered by the preview window. Printable keys use their ASCII value, the rest follow GLFW.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeySpace = 32

	Key0 = 48
	Key1 = 49
	Key2 = 50
	Key3 = 51
	Key4 = 52
	Key5 = 53
	Key6 = 54
	Key7 = 55
	Key8 = 56
	Key9 = 57

	KeyG = 71
	KeyP = 80
	KeyR = 82

	KeyEsc       = 256
	KeyBackspace = 259
	KeyDown      = 264
	KeyUp        = 265
)
