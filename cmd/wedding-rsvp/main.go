package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"

	"wedding-rsvp/internal/config"
	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/rsvp"
	"wedding-rsvp/internal/storage"
)

func main() {
	fmt.Println("💍 Wedding RSVP Manager")
	fmt.Println("=======================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	role, err := models.ParseRole(cfg.OperatorRole)
	if err != nil {
		fmt.Printf("Error in RSVP_OPERATOR_ROLE: %v\n", err)
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.NewStore(cfg.DatabasePath())
	if err != nil {
		fmt.Printf("Error initializing storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize lifecycle engine
	service := rsvp.NewService(store, logger, nil)

	fmt.Printf("\nOperating as %s. Database: %s\n", role, cfg.DatabasePath())

	startCLI(service, role, cfg)
}

func startCLI(service *rsvp.Service, role models.Role, cfg *config.Config) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Println("\nCommands:")
		fmt.Println("  1. Create invite")
		fmt.Println("  2. List invites")
		fmt.Println("  3. Show invite")
		fmt.Println("  4. Add guest")
		fmt.Println("  5. Set attendance")
		fmt.Println("  6. Remove guest")
		fmt.Println("  7. Lock invite")
		fmt.Println("  8. Unlock invite")
		fmt.Println("  9. Delete invite")
		fmt.Println("  0. Exit")
		fmt.Print("\nEnter command (0-9): ")

		if !scanner.Scan() {
			break
		}

		command := strings.TrimSpace(scanner.Text())

		switch command {
		case "1":
			createInvite(scanner, service, role)
		case "2":
			listInvites(scanner, service, role)
		case "3":
			showInvite(scanner, service, cfg)
		case "4":
			addGuest(scanner, service, role)
		case "5":
			setAttendance(scanner, service, role)
		case "6":
			removeGuest(scanner, service, role)
		case "7":
			lockInvite(scanner, service, role)
		case "8":
			unlockInvite(scanner, service, role)
		case "9":
			deleteInvite(scanner, service, role)
		case "0":
			fmt.Println("Exiting...")
			return
		default:
			fmt.Println("Invalid command. Please try again.")
		}
	}
}

func createInvite(scanner *bufio.Scanner, service *rsvp.Service, role models.Role) {
	code := prompt(scanner, "Invite code (leave empty to generate): ")
	deadlineStr := prompt(scanner, "RSVP deadline (YYYY-MM-DD): ")
	deadline, err := time.Parse("2006-01-02", deadlineStr)
	if err != nil {
		fmt.Printf("❌ Invalid date: %v\n", err)
		return
	}
	language := prompt(scanner, fmt.Sprintf("Language (%s, default en): ", strings.Join(models.SupportedLanguages, "/")))
	allowanceStr := prompt(scanner, "Plus-one allowance (default 0): ")
	allowance := 0
	if allowanceStr != "" {
		allowance, err = strconv.Atoi(allowanceStr)
		if err != nil {
			fmt.Printf("❌ Invalid allowance: %v\n", err)
			return
		}
	}
	notes := prompt(scanner, "Notes (optional): ")

	inv, err := service.CreateInvite(context.Background(), role, rsvp.CreateInviteParams{
		Code:             strings.ToUpper(code),
		Deadline:         deadline,
		Language:         language,
		PlusOneAllowance: allowance,
		Notes:            notes,
	})
	if err != nil {
		fmt.Printf("❌ Error creating invite: %v\n", err)
		return
	}
	fmt.Printf("✅ Invite %s created (deadline %s, allowance %d)\n",
		inv.Code, inv.Deadline.Format("2006-01-02"), inv.PlusOneAllowance)
}

func listInvites(scanner *bufio.Scanner, service *rsvp.Service, role models.Role) {
	language := prompt(scanner, "Filter by language (leave empty for all): ")

	invites, err := service.ListInvites(context.Background(), role, models.ListFilter{Language: language})
	if err != nil {
		fmt.Printf("❌ Error listing invites: %v\n", err)
		return
	}
	if len(invites) == 0 {
		fmt.Println("\nNo invites found.")
		return
	}

	fmt.Printf("\n📋 Invites (%d total):\n", len(invites))
	fmt.Println(strings.Repeat("-", 60))
	for _, inv := range invites {
		state := "open"
		if inv.Locked {
			state = "locked"
		}
		fmt.Printf("Code: %s\n", inv.Code)
		fmt.Printf("Deadline: %s (%s)\n", inv.Deadline.Format("2006-01-02"), state)
		fmt.Printf("Language: %s  Allowance: %d\n", inv.Language, inv.PlusOneAllowance)
		if inv.Notes != "" {
			fmt.Printf("Notes: %s\n", inv.Notes)
		}
		fmt.Println(strings.Repeat("-", 60))
	}
}

func showInvite(scanner *bufio.Scanner, service *rsvp.Service, cfg *config.Config) {
	code := promptCode(scanner)
	if code == "" {
		return
	}

	summary, err := service.Summarize(context.Background(), code)
	if err != nil {
		fmt.Printf("❌ Error reading invite: %v\n", err)
		return
	}
	if summary == nil {
		fmt.Printf("\nNo invite with code %s.\n", code)
		return
	}

	inv, guests, err := service.GetInviteWithGuests(context.Background(), code)
	if err != nil {
		fmt.Printf("❌ Error reading guests: %v\n", err)
		return
	}

	state := "open"
	if inv.Locked {
		state = "locked"
	}
	fmt.Printf("\n💌 Invite %s (%s)\n", inv.Code, state)
	fmt.Printf("Deadline: %s  Language: %s\n", inv.Deadline.Format("2006-01-02"), inv.Language)
	fmt.Printf("Attending: %d  Declined: %d  No response: %d\n",
		summary.Attending, summary.Declined, summary.NoResponse)
	fmt.Printf("Plus-ones: %d of %d  Children: %d\n",
		summary.PlusOnesUsed, summary.Allowance, summary.Children)

	if len(guests) > 0 {
		fmt.Println(strings.Repeat("-", 60))
		for _, g := range guests {
			tags := []string{}
			if g.IsPlusOne {
				tags = append(tags, "+1")
			}
			if g.IsChild {
				tags = append(tags, fmt.Sprintf("child %d", g.ChildAge))
			}
			suffix := ""
			if len(tags) > 0 {
				suffix = " [" + strings.Join(tags, ", ") + "]"
			}
			fmt.Printf("%s: %s%s\n", g.Name, g.Attending, suffix)
			if g.DietaryRequirements != "" {
				fmt.Printf("   Dietary: %s\n", g.DietaryRequirements)
			}
			fmt.Printf("   ID: %s\n", g.ID)
		}
	}

	inviteURL := rsvp.InviteURL(cfg.BaseURL, *inv)
	fmt.Printf("\n🔗 %s\n", inviteURL)
	if q, err := qrcode.New(inviteURL, qrcode.Medium); err == nil {
		fmt.Println(q.ToSmallString(false))
	}
}

func addGuest(scanner *bufio.Scanner, service *rsvp.Service, role models.Role) {
	code := promptCode(scanner)
	if code == "" {
		return
	}
	name := prompt(scanner, "Guest name: ")
	isPlusOne := promptYesNo(scanner, "Is this a plus-one? (y/N): ")
	dietary := prompt(scanner, "Dietary requirements (optional): ")
	isChild := promptYesNo(scanner, "Is this a child? (y/N): ")
	childAge := 0
	if isChild {
		ageStr := prompt(scanner, "Child age: ")
		if age, err := strconv.Atoi(ageStr); err == nil {
			childAge = age
		}
	}

	guest, err := service.AddGuest(context.Background(), role, code, rsvp.GuestParams{
		Name:                name,
		IsPlusOne:           isPlusOne,
		DietaryRequirements: dietary,
		IsChild:             isChild,
		ChildAge:            childAge,
	})
	if err != nil {
		fmt.Printf("❌ Error adding guest: %v\n", err)
		return
	}
	fmt.Printf("✅ Guest %s added to invite %s (ID: %s)\n", guest.Name, code, guest.ID)
}

func setAttendance(scanner *bufio.Scanner, service *rsvp.Service, role models.Role) {
	guestID := promptGuestID(scanner)
	if guestID == uuid.Nil {
		return
	}

	answer := strings.ToLower(prompt(scanner, "Attendance (yes/no/clear): "))
	var attending models.Attendance
	switch answer {
	case "yes", "y":
		attending = models.AttendanceConfirmed
	case "no", "n":
		attending = models.AttendanceDeclined
	case "clear":
		attending = models.AttendanceUnset
	default:
		fmt.Println("Invalid choice.")
		return
	}

	guest, err := service.UpdateGuest(context.Background(), role, guestID, models.GuestUpdate{
		Attending: &attending,
	})
	if err != nil {
		fmt.Printf("❌ Error updating attendance: %v\n", err)
		return
	}
	fmt.Printf("✅ %s is now marked as: %s\n", guest.Name, guest.Attending)
}

func removeGuest(scanner *bufio.Scanner, service *rsvp.Service, role models.Role) {
	guestID := promptGuestID(scanner)
	if guestID == uuid.Nil {
		return
	}
	if err := service.RemoveGuest(context.Background(), role, guestID); err != nil {
		fmt.Printf("❌ Error removing guest: %v\n", err)
		return
	}
	fmt.Println("✅ Guest removed.")
}

func lockInvite(scanner *bufio.Scanner, service *rsvp.Service, role models.Role) {
	code := promptCode(scanner)
	if code == "" {
		return
	}
	if err := service.Lock(context.Background(), role, code); err != nil {
		fmt.Printf("❌ Error locking invite: %v\n", err)
		return
	}
	fmt.Printf("🔒 Invite %s locked.\n", code)
}

func unlockInvite(scanner *bufio.Scanner, service *rsvp.Service, role models.Role) {
	code := promptCode(scanner)
	if code == "" {
		return
	}
	if err := service.Unlock(context.Background(), role, code); err != nil {
		fmt.Printf("❌ Error unlocking invite: %v\n", err)
		return
	}
	fmt.Printf("🔓 Invite %s unlocked.\n", code)
}

func deleteInvite(scanner *bufio.Scanner, service *rsvp.Service, role models.Role) {
	code := promptCode(scanner)
	if code == "" {
		return
	}
	confirm := promptYesNo(scanner, fmt.Sprintf("Delete invite %s and all its guests? (y/N): ", code))
	if !confirm {
		fmt.Println("Cancelled.")
		return
	}
	if err := service.DeleteInvite(context.Background(), role, code); err != nil {
		fmt.Printf("❌ Error deleting invite: %v\n", err)
		return
	}
	fmt.Printf("🗑️  Invite %s deleted.\n", code)
}

func prompt(scanner *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

func promptCode(scanner *bufio.Scanner) string {
	code := strings.ToUpper(prompt(scanner, "Invite code: "))
	if code == "" {
		fmt.Println("No code entered.")
	}
	return code
}

func promptGuestID(scanner *bufio.Scanner) uuid.UUID {
	idStr := prompt(scanner, "Guest ID: ")
	id, err := uuid.Parse(idStr)
	if err != nil {
		fmt.Printf("❌ Invalid guest ID: %v\n", err)
		return uuid.Nil
	}
	return id
}

func promptYesNo(scanner *bufio.Scanner, label string) bool {
	answer := strings.ToLower(prompt(scanner, label))
	return answer == "y" || answer == "yes"
}
