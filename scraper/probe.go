package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mydiplomaclassresults/sbtet-scraper/models"
)

const (
	tcpProbeTimeout  = 5 * time.Second
	httpProbeTimeout = 10 * time.Second
)

// WorkingURL returns the endpoint selected by a previous probe, or "".
func (s *Scraper) WorkingURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workingURL
}

// Probe selects a working base URL among the configured candidates. Each
// candidate is tried with an escalating timeout ladder; the first one that
// answers HTTP 200 is cached for the remainder of the session.
func (s *Scraper) Probe(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.workingURL != "" {
		selected := s.workingURL
		s.mu.Unlock()
		return selected, nil
	}
	s.mu.Unlock()

	var lastErr error
	for _, candidate := range s.cfg.BaseURLs {
		for _, timeout := range s.cfg.ProbeTimeouts {
			attemptCtx, cancel := context.WithTimeout(ctx, timeout)
			start := time.Now()
			resp, err := s.client.R().SetContext(attemptCtx).Get(candidate)
			cancel()
			s.Metrics.IncRequest("probe")
			s.Metrics.ObserveDuration(time.Since(start))

			if err != nil {
				lastErr = classifyError(err)
				slog.Debug("probe attempt failed",
					slog.String("url", candidate),
					slog.Duration("timeout", timeout),
					slog.Any("error", err),
				)
				continue
			}
			if resp.StatusCode() == http.StatusOK {
				s.mu.Lock()
				s.workingURL = candidate
				s.mu.Unlock()
				slog.Info("selected working endpoint", slog.String("url", candidate))
				return candidate, nil
			}
			lastErr = fmt.Errorf("http status %d from %s", resp.StatusCode(), candidate)
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate endpoints configured")
	}
	return "", ErrConnection{Err: fmt.Errorf("no reachable endpoint: %w", lastErr)}
}

// Diagnose independently checks DNS resolution, raw TCP reachability on ports
// 80 and 443, and a timed GET against each candidate. The report is meant for
// user-facing troubleshooting; control flow never depends on it.
func (s *Scraper) Diagnose(ctx context.Context) models.Diagnostics {
	var diag models.Diagnostics

	host := ""
	if parsed, err := url.Parse(s.cfg.BaseURLs[0]); err == nil {
		host = parsed.Hostname()
	}
	diag.DNS.Host = host

	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		diag.DNS.Error = err.Error()
	} else {
		diag.DNS.Resolved = true
		diag.DNS.Addresses = addrs
	}

	for _, port := range []int{80, 443} {
		check := models.TCPCheck{Port: port}
		conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), tcpProbeTimeout)
		if err != nil {
			check.Error = err.Error()
		} else {
			check.Reachable = true
			conn.Close()
		}
		diag.TCP = append(diag.TCP, check)
	}

	for _, candidate := range s.cfg.BaseURLs {
		check := models.HTTPCheck{URL: candidate}
		attemptCtx, cancel := context.WithTimeout(ctx, httpProbeTimeout)
		start := time.Now()
		resp, err := s.client.R().SetContext(attemptCtx).Get(candidate)
		cancel()
		check.ElapsedMS = time.Since(start).Milliseconds()
		if err != nil {
			check.Error = err.Error()
		} else {
			check.StatusCode = resp.StatusCode()
		}
		diag.HTTP = append(diag.HTTP, check)
	}

	return diag
}
