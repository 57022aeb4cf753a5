package sampler

import "github.com/FlavioCFOliveira/GoDiffusion/internal/tensor"

// historyCap bounds how many past noise predictions the PLMS blend can
// consult; the fourth-order Adams-Bashforth step needs at most four.
const historyCap = 4

// History is a bounded FIFO of past noise predictions, owned by a single
// sampling run. Pushing beyond capacity evicts the oldest entry.
type History struct {
	preds []*tensor.Tensor
}

// Len returns the number of stored predictions.
func (h *History) Len() int { return len(h.preds) }

// Push appends a prediction, evicting the oldest when full.
func (h *History) Push(p *tensor.Tensor) {
	if len(h.preds) == historyCap {
		copy(h.preds, h.preds[1:])
		h.preds = h.preds[:historyCap-1]
	}
	h.preds = append(h.preds, p)
}

// Prev returns the k-th most recent prediction (k=1 is the newest).
func (h *History) Prev(k int) *tensor.Tensor {
	return h.preds[len(h.preds)-k]
}

// Reset empties the history.
func (h *History) Reset() { h.preds = h.preds[:0] }
