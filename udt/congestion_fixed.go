package udt

import (
	"time"

	"github.com/kunalgosar/hifi/udt/packet"
)

// fixedRateCongestionControl sends at a constant, caller-configured period
// and never reacts to ACKs or loss. Useful for tests and for links where
// the adaptive controller's probing is unwanted.
type fixedRateCongestionControl struct {
	period time.Duration
	syn    time.Duration
}

// newFixedRateCongestionControl builds a policy that paces sends at period
// and runs its sync tick every syn.
func newFixedRateCongestionControl(period, syn time.Duration) *fixedRateCongestionControl {
	return &fixedRateCongestionControl{period: period, syn: syn}
}

func (c *fixedRateCongestionControl) init(synInterval time.Duration, sendCurrentSeq packet.SequenceNumber) {
	if c.syn == 0 {
		c.syn = synInterval
	}
}

func (c *fixedRateCongestionControl) setRTT(time.Duration)                           {}
func (c *fixedRateCongestionControl) setReceiveRate(uint)                            {}
func (c *fixedRateCongestionControl) setBandwidth(uint)                              {}
func (c *fixedRateCongestionControl) setSendCurrentSequenceNumber(packet.SequenceNumber) {}
func (c *fixedRateCongestionControl) setMaxFlowWindow(uint)                          {}
func (c *fixedRateCongestionControl) setMSS(uint)                                    {}

func (c *fixedRateCongestionControl) onAck(packet.SequenceNumber)       {}
func (c *fixedRateCongestionControl) onLoss(_, _ packet.SequenceNumber) {}
func (c *fixedRateCongestionControl) onTimeout()                        {}

func (c *fixedRateCongestionControl) synInterval() time.Duration      { return c.syn }
func (c *fixedRateCongestionControl) ackInterval() uint               { return 0 }
func (c *fixedRateCongestionControl) packetSendPeriod() time.Duration { return c.period }
func (c *fixedRateCongestionControl) rto() time.Duration              { return 0 }
func (c *fixedRateCongestionControl) userDefinedRto() bool            { return false }
