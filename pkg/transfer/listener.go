// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transfer

// Listener receives transfer notifications. All methods are called
// synchronously from the goroutine running SendImage.
type Listener interface {
	// OnProgress is called after each acknowledged page
	OnProgress(page, total int, plane string)
	// OnError is called once when the transfer fails
	OnError(msg string)
	// OnComplete is called once when the End reply was received
	OnComplete()
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Progress func(page, total int, plane string)
	Error    func(msg string)
	Complete func()
}

func (f ListenerFuncs) OnProgress(page, total int, plane string) {
	if f.Progress != nil {
		f.Progress(page, total, plane)
	}
}

func (f ListenerFuncs) OnError(msg string) {
	if f.Error != nil {
		f.Error(msg)
	}
}

func (f ListenerFuncs) OnComplete() {
	if f.Complete != nil {
		f.Complete()
	}
}

// NopListener ignores all notifications
type NopListener struct{}

func (NopListener) OnProgress(int, int, string) {}
func (NopListener) OnError(string)              {}
func (NopListener) OnComplete()                 {}
