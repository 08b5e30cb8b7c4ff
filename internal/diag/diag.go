// Package diag sweeps every configured destination and reports whether
// the bot can actually see and post there. Misconfigured channels are
// the most common operational failure; the sweep makes them visible
// before a gig silently fails to fan out.
package diag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gigboard/internal/snapshot"
	"gigboard/internal/transport"
	"gigboard/pkg/logx"
)

// ChannelReport is the sweep outcome for one channel.
type ChannelReport struct {
	ChannelID string
	Usage     []string
	Access    transport.Access
}

// Healthy means the bot can both read and post in the channel.
func (r ChannelReport) Healthy() bool {
	return r.Access.Reachable && r.Access.CanView && r.Access.CanSend
}

type Service struct {
	cache *snapshot.Cache
	msgr  transport.Messenger
	log   logx.Logger
}

func New(cache *snapshot.Cache, msgr transport.Messenger, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cache: cache, msgr: msgr, log: log}
}

// Sweep probes every channel the configuration references, deduplicated
// and annotated with how each channel is used.
func (s *Service) Sweep(ctx context.Context) ([]ChannelReport, error) {
	v, err := s.cache.View(ctx)
	if err != nil {
		return nil, err
	}

	usage := map[string][]string{}
	add := func(ch, u string) {
		for _, have := range usage[ch] {
			if have == u {
				return
			}
		}
		usage[ch] = append(usage[ch], u)
	}
	for catID, channels := range v.Targets {
		name := catID
		if cat, ok := v.Categories[catID]; ok {
			name = cat.Name
		}
		for _, ch := range channels {
			add(ch, "target:"+name)
		}
	}
	for catID, channels := range v.Reports {
		name := catID
		if cat, ok := v.Categories[catID]; ok {
			name = cat.Name
		}
		for _, ch := range channels {
			add(ch, "reports:"+name)
		}
	}
	for _, ch := range v.Diag {
		add(ch, "diagnostics")
	}

	reports := make([]ChannelReport, 0, len(usage))
	for ch, uses := range usage {
		sort.Strings(uses)
		reports = append(reports, ChannelReport{
			ChannelID: ch,
			Usage:     uses,
			Access:    s.msgr.ChannelAccess(ctx, ch),
		})
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].ChannelID < reports[j].ChannelID })

	for _, r := range reports {
		if !r.Healthy() {
			s.log.Warn("unhealthy destination",
				logx.String("channel", r.ChannelID),
				logx.String("usage", strings.Join(r.Usage, ",")),
				logx.String("detail", r.Access.Detail))
		}
	}
	return reports, nil
}

// Format renders the sweep for a moderator-facing reply.
func Format(reports []ChannelReport) string {
	if len(reports) == 0 {
		return "No destinations are configured."
	}
	var b strings.Builder
	healthy := 0
	for _, r := range reports {
		if r.Healthy() {
			healthy++
		}
	}
	fmt.Fprintf(&b, "**Health check:** %d/%d destinations healthy\n", healthy, len(reports))
	for _, r := range reports {
		mark := "OK"
		if !r.Healthy() {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "`%s` [%s] %s", r.ChannelID, mark, strings.Join(r.Usage, ", "))
		if !r.Healthy() && r.Access.Detail != "" {
			fmt.Fprintf(&b, " (%s)", r.Access.Detail)
		}
		b.WriteString("\n")
	}
	out := b.String()
	if len(out) > 1900 {
		out = out[:1900]
	}
	return out
}
