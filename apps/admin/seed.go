package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/campuscoin/campuscoin/core/achievement"
	"github.com/campuscoin/campuscoin/core/goal"
	"github.com/campuscoin/campuscoin/core/user"
)

// seed loads baseline data: an admin account, sample goals and achievements.
// It is idempotent; existing records are left alone.
func (cli *commandLine) seed() error {
	ctx := context.Background()

	if _, err := cli.usrRepo.GetUserByStudentID(ctx, "admin"); err != nil {
		if err != user.ErrNotFound {
			return errors.Wrap(err, "checking admin account")
		}
		admin := user.User{
			Name:           "Administrator",
			StudentID:      "admin",
			Email:          "admin@campuscoin.test",
			Roles:          []string{user.RoleStudent, user.RoleTeacher, user.RoleAdmin},
			ApprovalStatus: user.ApprovalApproved,
			IsActive:       true,
		}
		if err := admin.SetPassword("changeme"); err != nil {
			return errors.Wrap(err, "setting admin password")
		}
		if _, err := cli.usrRepo.CreateUser(ctx, admin); err != nil {
			return errors.Wrap(err, "creating admin account")
		}
		logger.Println("created admin account (password: changeme)")
	}

	now := time.Now().UTC()
	weekEnd := now.Add(7 * 24 * time.Hour)
	goals := []goal.Goal{
		{
			Title:       "Attend the welcome week fair",
			Description: "Check in at the student fair stand during welcome week.",
			Kind:        "event",
			Requirement: 1,
			Reward:      50,
			IsActive:    true,
			StartsAt:    now,
			EndsAt:      &weekEnd,
		},
		{
			Title:       "Join a study group",
			Description: "Register with any study group this semester.",
			Kind:        "academic",
			Requirement: 1,
			Reward:      30,
			IsActive:    true,
			StartsAt:    now,
		},
		{
			Title:       "Perfect attendance",
			Description: "Attend every lecture for a full month.",
			Kind:        "attendance",
			Requirement: 20,
			Reward:      100,
			IsActive:    true,
			StartsAt:    now,
		},
	}
	for _, g := range goals {
		if cli.goalExists(ctx, g.Title) {
			continue
		}
		if _, err := cli.goalRepo.CreateGoal(ctx, g); err != nil {
			return errors.Wrap(err, "creating goal "+g.Title)
		}
		logger.Printf("created goal %q", g.Title)
	}

	achievements := []achievement.Achievement{
		{
			Name:        "First Coins",
			Description: "Receive your first coins.",
			Kind:        "milestone",
			Category:    "Getting Started",
			Icon:        "coins",
		},
		{
			Name:        "Generous Soul",
			Description: "Send coins to ten different classmates.",
			Kind:        "social",
			Category:    "Community",
			Icon:        "gift",
		},
		{
			Name:        "Goal Getter",
			Description: "Complete five goals.",
			Kind:        "milestone",
			Category:    "Goals",
			Icon:        "target",
		},
	}
	for _, a := range achievements {
		if cli.achievementExists(ctx, a.Name) {
			continue
		}
		if _, err := cli.achRepo.CreateAchievement(ctx, a); err != nil {
			return errors.Wrap(err, "creating achievement "+a.Name)
		}
		logger.Printf("created achievement %q", a.Name)
	}
	return nil
}

func (cli *commandLine) goalExists(ctx context.Context, title string) bool {
	var exists bool
	_ = cli.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM goal WHERE title = $1)`, title)
	return exists
}

func (cli *commandLine) achievementExists(ctx context.Context, name string) bool {
	var exists bool
	_ = cli.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM achievement WHERE name = $1)`, name)
	return exists
}
