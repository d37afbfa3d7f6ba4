package swapring

import "fmt"

// DrawFunc draws one frame into img, the image of slot index.
type DrawFunc func(index int, img Image) error

// RenderFrame runs one full frame: acquire the next slot, draw into it,
// submit, create the acquire fence and present to s.
//
// A draw error does not stall the ring: the slot is still submitted, the
// frame is not presented and the draw error is returned.
func (p *Pool) RenderFrame(s Surface, draw DrawFunc) error {
	index, err := p.Acquire()
	if err != nil {
		return err
	}

	var drawErr error
	if draw != nil {
		drawErr = draw(index, p.slots[index].image)
	}

	if err := p.Submit(index); err != nil {
		if drawErr != nil {
			return fmt.Errorf("swapring: draw slot %d: %w (submit: %w)", index, drawErr, err)
		}
		return err
	}
	if drawErr != nil {
		return fmt.Errorf("swapring: draw slot %d: %w", index, drawErr)
	}

	h, err := p.CreateFence()
	if err != nil {
		return err
	}
	Present(p, s, index, h)
	return nil
}
