// Package workflow implements the backup job orchestration engine.
//
// A backup job is modeled as a Workflow: an ordered set of pre hooks, a
// single transfer step, and an ordered set of post hooks. Backup types
// (rdiff-backup, LVM snapshot sources, ZFS destinations) specialize a
// workflow by attaching hooks and a transfer function rather than by
// subclassing, so a job is always the composition of a base orchestrator
// plus the hook descriptors its backup type contributed.
//
// The lifecycle of one run is a fixed state machine:
//
//	Idle -> RunningPreHooks -> RunningTransfer -> RunningPostHooks -> Completed
//	                                                               -> Failed
//
// Pre hooks run in ascending level order and abort the run on first
// failure; the transfer step never executes after a pre hook failure.
// Post hooks always run, whatever happened earlier, so cleanup hooks get
// their chance even when the transfer failed. Individual post hook
// failures are collected and reported together instead of masking each
// other.
//
// Example usage:
//
//	wf := workflow.New(workflow.Config{Label: "mybackup"}, runner, logger)
//	wf.IncludeDir("/etc")
//	wf.AddPreHook(50, "stop service", func() error {
//		_, err := wf.RunCommand([]string{"systemctl", "stop", "nginx"}, "")
//		return err
//	})
//	wf.SetTransfer(func() error { ... })
//	err := wf.Run()
package workflow
