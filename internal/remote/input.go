package remote

import (
	"context"
	"errors"
)

// Strike presses keys in order and releases them in reverse, so the last key
// is struck with every earlier key held. Unknown names fail before anything
// is sent.
func Strike(ctx context.Context, s Session, keys ...string) error {
	return WithKeysHeld(ctx, s, keys, func() error { return nil })
}

// WithKeysHeld holds keys down while fn runs. Keys pressed before a failure
// are always released, in reverse order.
func WithKeysHeld(ctx context.Context, s Session, keys []string, fn func() error) (err error) {
	if _, err := resolveKeys(keys); err != nil {
		return err
	}

	var pressed []string
	defer func() {
		release := context.WithoutCancel(ctx)
		for i := len(pressed) - 1; i >= 0; i-- {
			if upErr := s.KeyUp(release, pressed[i]); upErr != nil {
				err = errors.Join(err, upErr)
			}
		}
	}()

	for _, key := range keys {
		if err := s.KeyDown(ctx, key); err != nil {
			return err
		}
		pressed = append(pressed, key)
	}
	return fn()
}

// WithButtonHeld holds mouse button b while fn runs.
func WithButtonHeld(ctx context.Context, s Session, b Button, fn func() error) (err error) {
	if err := checkButton(b); err != nil {
		return err
	}
	if err := s.ButtonDown(ctx, b); err != nil {
		return err
	}
	defer func() {
		if upErr := s.ButtonUp(context.WithoutCancel(ctx), b); upErr != nil {
			err = errors.Join(err, upErr)
		}
	}()
	return fn()
}

// Click presses and releases b n times at the current pointer position.
// Scroll buttons scroll one line per click.
func Click(ctx context.Context, s Session, b Button, n int) error {
	if err := checkButton(b); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := s.ButtonDown(ctx, b); err != nil {
			return err
		}
		if err := s.ButtonUp(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// Drag moves the pointer to (x0, y0) and then to (x1, y1).
func Drag(ctx context.Context, s Session, x0, y0, x1, y1 int) error {
	if err := s.MoveMouse(ctx, x0, y0); err != nil {
		return err
	}
	return s.MoveMouse(ctx, x1, y1)
}
