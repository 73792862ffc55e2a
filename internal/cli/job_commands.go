package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"game-fix-manager/internal/fixer"
	"game-fix-manager/internal/manifest"
	"game-fix-manager/internal/model"
	"game-fix-manager/internal/supervisor"
)

const (
	fixKindGeneric = "generic"
	fixKindOnline  = "online"
	fixKindUnsteam = "unsteam"

	labelGeneric = "Generic Fix"
	labelOnline  = "Online Fix"
)

func runCheck(args []string) error {
	fs, common := newFlagSet("check")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	appID, err := appIDArg(fs)
	if err != nil {
		return err
	}
	a, err := newApp(common)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.sup.CheckAvailability(context.Background(), appID)
	if !res.Success {
		return res.Err()
	}
	if common.jsonOut {
		return printJSON(res)
	}

	fmt.Printf("app: %d (%s)\n", res.AppID, res.GameName)
	printProbe("generic", res.GenericFix)
	printProbe("online", res.OnlineFix)
	return nil
}

func printProbe(label string, p supervisor.Probe) {
	if p.Available {
		fmt.Printf("%s: available (%s)\n", label, p.URL)
		return
	}
	if p.Status == 0 {
		fmt.Printf("%s: unavailable (unreachable)\n", label)
		return
	}
	fmt.Printf("%s: unavailable (HTTP %d)\n", label, p.Status)
}

func runApply(args []string) error {
	fs, common := newFlagSet("apply")
	url := fs.String("url", "", "fix archive URL (skips the availability check)")
	kind := fs.String("kind", fixKindGeneric, "fix to apply when --url is empty: generic|online|unsteam")
	fixType := fs.String("fix-type", "", "fix label recorded in the fix log (default derived from --kind)")
	gameName := fs.String("game-name", "", "display name recorded in the fix log (default looked up)")
	installPath := fs.String("install-path", "", "game install directory (default resolved from Steam libraries)")
	noTUI := fs.Bool("no-tui", false, "print plain progress lines instead of the interactive view")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	appID, err := appIDArg(fs)
	if err != nil {
		return err
	}
	a, err := newApp(common)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	path, err := a.resolveInstallPath(ctx, appID, *installPath)
	if err != nil {
		return err
	}
	target, label, err := a.chooseFix(ctx, appID, strings.TrimSpace(*url), strings.ToLower(strings.TrimSpace(*kind)))
	if err != nil {
		return err
	}
	if v := strings.TrimSpace(*fixType); v != "" {
		label = v
	}

	res := a.sup.StartApply(appID, target, path, label, *gameName)
	if !res.Success {
		return res.Err()
	}
	a.logger.Debug("apply started", "app_id", appID, "job_id", res.JobID, "url", target, "path", path)

	w := watcher{
		title:  fmt.Sprintf("apply %s to %d", label, appID),
		poll:   func() jobView { return applyView(appID, a.sup.PollApply(appID).State) },
		cancel: func() supervisor.Result { return a.sup.CancelApply(appID) },
	}
	final, err := watchJob(ctx, w, stdoutIsTTY() && !*noTUI && !common.jsonOut, common.jsonOut)
	if err != nil {
		return err
	}
	if err := a.sup.Wait(ctx, appID, model.KindApply); err != nil {
		return err
	}
	return reportJob(common.jsonOut, final)
}

// chooseFix returns the archive URL and label for an apply. An explicit URL
// wins; otherwise the requested kind is resolved through the availability
// probes.
func (a *app) chooseFix(ctx context.Context, appID int64, url, kind string) (string, string, error) {
	switch kind {
	case fixKindUnsteam:
		if url == "" {
			url = a.cfg.UnsteamFixURL
		}
		return url, fixer.UnsteamFixType, nil
	case fixKindGeneric, fixKindOnline:
	default:
		return "", "", fmt.Errorf("--kind must be %s, %s or %s", fixKindGeneric, fixKindOnline, fixKindUnsteam)
	}

	label := labelGeneric
	if kind == fixKindOnline {
		label = labelOnline
	}
	if url != "" {
		return url, label, nil
	}

	res := a.sup.CheckAvailability(ctx, appID)
	if !res.Success {
		return "", "", res.Err()
	}
	probe := res.GenericFix
	if kind == fixKindOnline {
		probe = res.OnlineFix
	}
	if !probe.Available {
		return "", "", fmt.Errorf("no %s fix published for %d (last status %d)", kind, appID, probe.Status)
	}
	return probe.URL, label, nil
}

func runRemove(args []string) error {
	fs, common := newFlagSet("remove")
	installPath := fs.String("install-path", "", "game install directory (default resolved from Steam libraries)")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	noTUI := fs.Bool("no-tui", false, "print plain progress lines instead of the interactive view")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	appID, err := appIDArg(fs)
	if err != nil {
		return err
	}
	a, err := newApp(common)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	path := strings.TrimSpace(*installPath)
	if !*yes {
		resolved, err := a.resolveInstallPath(ctx, appID, path)
		if err != nil {
			return err
		}
		m, err := manifest.Read(resolved, appID)
		if err == nil {
			confirmed, err := promptConfirm(fmt.Sprintf("remove %d files of %q from %s? [y/N]: ", len(m.Files), m.FixType, resolved))
			if err != nil {
				return err
			}
			if !confirmed {
				return errors.New("remove aborted")
			}
		}
		path = resolved
	}

	res := a.sup.StartRemove(ctx, appID, path)
	if !res.Success {
		return res.Err()
	}

	w := watcher{
		title: fmt.Sprintf("remove fix from %d", appID),
		poll:  func() jobView { return removeView(appID, a.sup.PollRemove(appID).State) },
	}
	final, err := watchJob(ctx, w, stdoutIsTTY() && !*noTUI && !common.jsonOut, common.jsonOut)
	if err != nil {
		return err
	}
	if err := a.sup.Wait(ctx, appID, model.KindRemove); err != nil {
		return err
	}
	return reportJob(common.jsonOut, final)
}

// reportJob prints the final state and turns unsuccessful outcomes into an
// error so the process exits non-zero.
func reportJob(jsonOut bool, v jobView) error {
	if jsonOut {
		if err := printJSON(v); err != nil {
			return err
		}
	}
	if v.Succeeded {
		return nil
	}
	if v.Error != "" {
		return fmt.Errorf("%s %s: %s", v.Kind, v.Status, v.Error)
	}
	return fmt.Errorf("%s %s", v.Kind, v.Status)
}
