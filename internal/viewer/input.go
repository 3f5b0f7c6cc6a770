package viewer

import "github.com/veandco/go-sdl2/sdl"

// Input is what the user did since the last Poll.
type Input struct {
	Quit        bool
	DragX       float32
	DragY       float32
	Zoom        float32
	Forward     float32
	Right       float32
	TogglePause bool
	Faster      bool
	Slower      bool
}

// Poll drains SDL events. Movement keys are read as held state so panning is
// smooth regardless of key repeat.
func Poll() Input {
	var in Input
	for ev := sdl.PollEvent(); ev != nil; ev = sdl.PollEvent() {
		switch e := ev.(type) {
		case *sdl.QuitEvent:
			in.Quit = true
		case *sdl.KeyboardEvent:
			if e.Type != sdl.KEYDOWN || e.Repeat != 0 {
				continue
			}
			switch e.Keysym.Scancode {
			case sdl.SCANCODE_ESCAPE:
				in.Quit = true
			case sdl.SCANCODE_SPACE:
				in.TogglePause = true
			case sdl.SCANCODE_EQUALS, sdl.SCANCODE_KP_PLUS:
				in.Faster = true
			case sdl.SCANCODE_MINUS, sdl.SCANCODE_KP_MINUS:
				in.Slower = true
			}
		case *sdl.MouseMotionEvent:
			if e.State&sdl.ButtonLMask() != 0 {
				in.DragX += float32(e.XRel)
				in.DragY += float32(e.YRel)
			}
		case *sdl.MouseWheelEvent:
			in.Zoom += float32(e.Y)
		}
	}

	keys := sdl.GetKeyboardState()
	if keys[sdl.SCANCODE_W] != 0 {
		in.Forward++
	}
	if keys[sdl.SCANCODE_S] != 0 {
		in.Forward--
	}
	if keys[sdl.SCANCODE_D] != 0 {
		in.Right++
	}
	if keys[sdl.SCANCODE_A] != 0 {
		in.Right--
	}
	return in
}
