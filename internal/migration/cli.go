package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// =============================================================================
// 🖥️ 终端输出层
// =============================================================================

// CLI 把 Migrator 的操作包装为面向运维终端的输出，
// 每个操作结束后打印事件日志 Schema 的当前版本。
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI 创建 CLI，默认输出到标准输出
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

// SetOutput 设置输出目标
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

func (c *CLI) printf(format string, args ...any) {
	fmt.Fprintf(c.output, format, args...)
}

// apply 打印开始提示，执行 op，成功后以 done 为前缀打印当前版本
func (c *CLI) apply(ctx context.Context, start, failure, done string, op func(context.Context) error) error {
	c.printf("%s\n", start)
	if err := op(ctx); err != nil {
		return fmt.Errorf("%s: %w", failure, err)
	}
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	c.printf("%s. Current version: %d\n", done, info.CurrentVersion)
	return nil
}

// RunUp 应用所有未执行的迁移
func (c *CLI) RunUp(ctx context.Context) error {
	return c.apply(ctx, "Applying turn event schema migrations...", "migration failed", "Migrations complete", c.migrator.Up)
}

// RunDown 回滚最近一次迁移
func (c *CLI) RunDown(ctx context.Context) error {
	return c.apply(ctx, "Rolling back last migration...", "rollback failed", "Rollback complete", c.migrator.Down)
}

// RunDownAll 回滚全部迁移，turn_events 表会被删除
func (c *CLI) RunDownAll(ctx context.Context) error {
	c.printf("Rolling back all migrations...\n")
	if err := c.migrator.DownAll(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	c.printf("All migrations rolled back. Recorded turns were dropped.\n")
	return nil
}

// RunReset 回滚全部迁移后重新应用，只用于开发环境
func (c *CLI) RunReset(ctx context.Context) error {
	return c.apply(ctx, "Resetting turn event schema...", "reset failed", "Reset complete", func(ctx context.Context) error {
		if err := c.migrator.DownAll(ctx); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		return c.migrator.Up(ctx)
	})
}

// RunSteps 前进（n > 0）或回滚（n < 0）n 步
func (c *CLI) RunSteps(ctx context.Context, n int) error {
	start := fmt.Sprintf("Applying %d migration(s)...", n)
	if n < 0 {
		start = fmt.Sprintf("Rolling back %d migration(s)...", -n)
	}
	return c.apply(ctx, start, "migration steps failed", "Complete", func(ctx context.Context) error {
		return c.migrator.Steps(ctx, n)
	})
}

// RunGoto 迁移到指定版本
func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	return c.apply(ctx, fmt.Sprintf("Migrating to version %d...", version), "migration failed", "Migration complete",
		func(ctx context.Context) error { return c.migrator.Goto(ctx, version) })
}

// RunForce 强制设置版本号并清除 dirty 标记，不执行任何 SQL
func (c *CLI) RunForce(ctx context.Context, version int) error {
	c.printf("Forcing version to %d...\n", version)
	if err := c.migrator.Force(ctx, version); err != nil {
		return fmt.Errorf("force failed: %w", err)
	}
	c.printf("Version forced to %d\n", version)
	return nil
}

// RunVersion 输出当前版本
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	if version == 0 {
		c.printf("No migrations applied yet.\n")
		return nil
	}

	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	c.printf("Current version: %d%s\n", version, suffix)
	return nil
}

// RunStatus 以表格输出每个迁移的状态
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if len(statuses) == 0 {
		c.printf("No migrations found.\n")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, statusLabel(s))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	c.printf("\nTotal: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

func statusLabel(s MigrationStatus) string {
	switch {
	case s.Dirty:
		return "Dirty"
	case s.Applied:
		return "Applied"
	default:
		return "Pending"
	}
}

// RunInfo 输出迁移摘要
func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get info: %w", err)
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Current Version:\t%d\n", info.CurrentVersion)
	fmt.Fprintf(w, "Dirty:\t%v\n", info.Dirty)
	fmt.Fprintf(w, "Total Migrations:\t%d\n", info.TotalMigrations)
	fmt.Fprintf(w, "Applied Migrations:\t%d\n", info.AppliedMigrations)
	fmt.Fprintf(w, "Pending Migrations:\t%d\n", info.PendingMigrations)
	return w.Flush()
}
