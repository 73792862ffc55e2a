package supervisor

import (
	"context"
	"net/http"
	"strings"

	"game-fix-manager/internal/config"
	"game-fix-manager/internal/manifest"
)

// Probe is the outcome of checking one fix category.
type Probe struct {
	Status    int    `json:"status"`
	Available bool   `json:"available"`
	URL       string `json:"url,omitempty"`
}

type Availability struct {
	Result
	AppID      int64  `json:"appid"`
	GameName   string `json:"gameName"`
	GenericFix Probe  `json:"genericFix"`
	OnlineFix  Probe  `json:"onlineFix"`
}

// CheckAvailability probes the generic fix location and the online fix
// mirrors. Mirrors are tried in order and the first available one wins.
func (s *Supervisor) CheckAvailability(ctx context.Context, appID int64) Availability {
	if err := validateAppID(appID); err != nil {
		return Availability{Result: Failed(err)}
	}

	out := Availability{Result: ok(""), AppID: appID}
	out.GameName = s.resolveName(ctx, appID)
	if out.GameName == "" {
		out.GameName = manifest.UnknownGameName(appID)
	}

	if s.probe.GenericURL != "" {
		url := config.ExpandURL(s.probe.GenericURL, appID)
		status, err := s.head(ctx, url)
		if err != nil {
			s.deps.Logger.Warn("generic fix check failed", "app_id", appID, "url", url, "error", err)
		} else {
			out.GenericFix.Status = status
			out.GenericFix.Available = status == http.StatusOK
			if out.GenericFix.Available {
				out.GenericFix.URL = url
			}
			s.deps.Logger.Debug("generic fix check", "app_id", appID, "status", status)
		}
	}
	s.deps.Metrics.ProbeCompleted("generic", out.GenericFix.Available)

	for _, tmpl := range s.probe.OnlineURLs {
		url := config.ExpandURL(tmpl, appID)
		status, err := s.head(ctx, url)
		if err != nil {
			s.deps.Logger.Warn("online fix check failed", "app_id", appID, "url", url, "error", err)
			continue
		}
		s.deps.Logger.Debug("online fix check", "app_id", appID, "url", url, "status", status)
		out.OnlineFix.Status = status
		if status == http.StatusOK {
			out.OnlineFix.Available = true
			out.OnlineFix.URL = url
			break
		}
	}
	s.deps.Metrics.ProbeCompleted("online", out.OnlineFix.Available)

	return out
}

func (s *Supervisor) head(ctx context.Context, url string) (int, error) {
	if s.probe.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.probe.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	if ua := strings.TrimSpace(s.probe.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	client := s.deps.Prober
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
