package consensus

import (
	"testing"
	"time"

	"github.com/neonium/neond/pkg/util"
)

// fixtureSigner is a deterministic stand-in for privKeySigner, letting these
// tests drive roundState without touching real ECDSA keys.
type fixtureSigner struct{ tag byte }

func (f fixtureSigner) Sign(msg []byte) ([]byte, error) {
	sig := make([]byte, 64)
	sig[0] = f.tag
	return sig, nil
}

func pubkeys(n int) [][]byte {
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		out[i] = []byte{byte(i), 0xAA}
	}
	return out
}

func zeroHash() util.UInt256 { return util.UInt256{} }
func zeroAddr() util.UInt160 { return util.UInt160{} }

func TestPrimaryIndexRotatesWithViewAndHeight(t *testing.T) {
	c := newContext(10, zeroHash(), 1000, zeroAddr(), pubkeys(4), 0, fixtureSigner{})
	cases := []struct {
		blockIndex uint32
		view       byte
		want       int
	}{
		{10, 0, 2}, // (10 - 0) mod 4
		{10, 1, 1}, // (10 - 1) mod 4
		{10, 2, 0}, // (10 - 2) mod 4
		{11, 0, 3}, // (11 - 0) mod 4
	}
	for _, tc := range cases {
		c.blockIndex = tc.blockIndex
		c.viewNumber = tc.view
		if got := c.primaryIndex(); got != tc.want {
			t.Errorf("primaryIndex(index=%d, view=%d) = %d, want %d", tc.blockIndex, tc.view, got, tc.want)
		}
	}
}

func TestQuorumMathForFourValidators(t *testing.T) {
	c := newContext(1, zeroHash(), 0, zeroAddr(), pubkeys(4), 0, fixtureSigner{})
	if c.n() != 4 {
		t.Fatalf("n() = %d, want 4", c.n())
	}
	if c.f() != 1 {
		t.Fatalf("f() = %d, want 1", c.f())
	}
	if c.m() != 3 {
		t.Fatalf("m() = %d, want 3", c.m())
	}
}

func TestChangeViewCountCountsGreaterOrEqualTargets(t *testing.T) {
	c := newContext(1, zeroHash(), 0, zeroAddr(), pubkeys(4), 0, fixtureSigner{})
	c.changeViews[0] = changeView{NewViewNumber: 1}
	c.changeViews[1] = changeView{NewViewNumber: 2}
	c.changeViews[2] = changeView{NewViewNumber: 1}

	if got := c.changeViewCount(1); got != 3 {
		t.Errorf("changeViewCount(1) = %d, want 3", got)
	}
	if got := c.changeViewCount(2); got != 1 {
		t.Errorf("changeViewCount(2) = %d, want 1", got)
	}
}

func TestResetForViewKeepsCommitsButClearsPreparations(t *testing.T) {
	c := newContext(1, zeroHash(), 0, zeroAddr(), pubkeys(4), 0, fixtureSigner{})
	c.request = &prepareRequest{Timestamp: 1}
	c.responses[1] = c.request.prepareHash()
	c.commits[0] = []byte{0x01}
	c.blockSent = true

	c.resetForView(1)

	if c.viewNumber != 1 {
		t.Fatalf("viewNumber = %d, want 1", c.viewNumber)
	}
	if c.request != nil {
		t.Fatalf("request should be cleared on view change")
	}
	if len(c.responses) != 0 {
		t.Fatalf("responses should be cleared on view change")
	}
	if c.blockSent {
		t.Fatalf("blockSent should be cleared on view change")
	}
	if len(c.commits) != 1 {
		t.Fatalf("commits must survive a view change once sent, per byzantine-safety rule")
	}
}

func TestTimerDurationDoublesPerView(t *testing.T) {
	base := 15 * time.Second
	if got := timerDuration(base, 0); got != base {
		t.Errorf("timerDuration(view=0) = %v, want %v", got, base)
	}
	if got := timerDuration(base, 1); got != 2*base {
		t.Errorf("timerDuration(view=1) = %v, want %v", got, 2*base)
	}
	if got := timerDuration(base, 3); got != 8*base {
		t.Errorf("timerDuration(view=3) = %v, want %v", got, 8*base)
	}
}

func TestPreparedCountIncludesPrimarysImplicitPreparation(t *testing.T) {
	c := newContext(1, zeroHash(), 0, zeroAddr(), pubkeys(4), 0, fixtureSigner{})
	c.request = &prepareRequest{Timestamp: 1}
	rh := c.request.prepareHash()

	if got := c.preparedCount(); got != 1 {
		t.Fatalf("preparedCount() with no responses = %d, want 1 (primary's own)", got)
	}
	c.responses[1] = rh
	c.responses[2] = rh
	if got := c.preparedCount(); got != 3 {
		t.Fatalf("preparedCount() = %d, want 3", got)
	}
}

func TestHaveAllTransactionsRequiresEveryHash(t *testing.T) {
	c := newContext(1, zeroHash(), 0, zeroAddr(), pubkeys(4), 0, fixtureSigner{})
	h := c.prevHash
	c.request = &prepareRequest{TransactionHashes: []util.UInt256{h}}
	if c.haveAllTransactions() {
		t.Fatalf("haveAllTransactions should be false before the tx is fetched")
	}
}
