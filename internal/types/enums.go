package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// Channel orders release streams from most to least stable.
type Channel int

const (
	ChannelStable Channel = iota
	ChannelBeta
	ChannelDev
	ChannelCanary
)

var channelNames = map[Channel]string{
	ChannelStable: "stable",
	ChannelBeta:   "beta",
	ChannelDev:    "dev",
	ChannelCanary: "canary",
}

// ParseChannel accepts a channel name ("beta") or an indexed reference
// ("channel-1"). An empty value is the stable channel.
func ParseChannel(value string) (Channel, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return ChannelStable, nil
	}
	for channel, name := range channelNames {
		if name == trimmed {
			return channel, nil
		}
	}
	if strings.HasPrefix(trimmed, "channel-") {
		index, err := strconv.Atoi(strings.TrimPrefix(trimmed, "channel-"))
		if err == nil && index >= int(ChannelStable) && index <= int(ChannelCanary) {
			return Channel(index), nil
		}
	}
	return ChannelStable, errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("unknown channel %q", value))
}

func (c Channel) String() string {
	if name, ok := channelNames[c]; ok {
		return name
	}
	return fmt.Sprintf("channel-%d", int(c))
}

// Within reports whether c is at least as stable as limit.
func (c Channel) Within(limit Channel) bool {
	return c <= limit
}

// Settings carries the caller's channel and transport preferences.
type Settings struct {
	Channel   Channel
	ForceHTTP bool
}

func (s Settings) ChannelLimit() Channel {
	return s.Channel
}

func (s Settings) ForceHTTPDownloads() bool {
	return s.ForceHTTP
}
