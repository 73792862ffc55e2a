package cli

import (
	"fmt"

	"game-fix-manager/internal/version"
)

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "check":
		return runCheck(args[1:])
	case "apply":
		return runApply(args[1:])
	case "remove":
		return runRemove(args[1:])
	case "status":
		return runStatus(args[1:])
	case "history":
		return runHistory(args[1:])
	case "serve":
		return runServe(args[1:])
	case "init":
		return runInit(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "config":
		return runConfig(args[1:])
	case "version", "--version":
		fmt.Println(version.Value)
		return nil
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("game-fix-manager: download, apply and remove game fixes")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  game-fix-manager init")
	fmt.Println("  game-fix-manager check <appid>")
	fmt.Println("  game-fix-manager apply <appid> [--kind generic|online|unsteam] [--install-path <dir>]")
	fmt.Println("  game-fix-manager remove <appid> [--install-path <dir>]")
	fmt.Println()
	fmt.Println("Fix Commands:")
	fmt.Println("  check     probe which fixes are published for an app")
	fmt.Println("  apply     download a fix and extract it into the install directory")
	fmt.Println("  remove    delete every file a previous apply wrote")
	fmt.Println("  status    show the fix log of an install directory")
	fmt.Println("  history   list finished jobs")
	fmt.Println()
	fmt.Println("Service Commands:")
	fmt.Println("  serve     run the local JSON API")
	fmt.Println("  init      write a default config + run environment checks")
	fmt.Println("  doctor    run preflight checks (--fix clears stale install locks)")
	fmt.Println("  config    show the effective configuration")
	fmt.Println("  version   print the version")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - Use --config <path> or GFM_CONFIG to pick a config file")
}
