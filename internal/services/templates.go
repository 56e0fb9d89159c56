package services

import (
	"fmt"
	"strings"

	"github.com/Ananth-NQI/salonbook-backend/internal/models"
)

// Fixed replies.
const (
	CancelledText      = "Appointment has been cancelled. Thank you!"
	BookingFailedText  = "Sorry, there was an error booking the appointment. Please try again later."
	NoStaffText        = "Sorry, no staff members are available at this time."
	NoServicesText     = "Sorry, no services are available at this time."
	SessionExpiredText = "⌛ Your previous booking session expired due to inactivity."

	nameRetryText   = "Please enter a valid name (at least 2 characters):"
	mobileRetryText = "Please enter a valid 10-digit mobile number (e.g., 9876543210):"
	emailPromptText = "Please provide your *email address* (optional, send 'skip' to continue):"
	emailRetryText  = "Please enter a valid email address (e.g., name@example.com) or send 'skip' to continue:"
	notesPromptText = "Do you have any *notes* or special requirements? (If not, send 'no'):"

	dateInstructions = "Format: DD-MM-YYYY (DD/MM/YYYY, YYYY-MM-DD and DD.MM.YYYY also work)\nExample: 15-01-2025"
	timeInstructions = "Format: HH:MM (24-hour) or HH:MM AM/PM\nExample: 14:30 or 02:30 PM"

	displayDate = "02-01-2006"
	displayTime = "15:04"
)

// WelcomeText is the first reply of every conversation.
func WelcomeText(businessName string) string {
	return fmt.Sprintf("👋 Welcome to *%s*!\n\nYou can book an appointment through WhatsApp.\n\nPlease provide your *name*:", businessName)
}

func mobilePrompt(name string) string {
	return fmt.Sprintf("Thank you %s! 🙏\n\nPlease provide your *mobile number* (10 digits):", name)
}

func emailPrompt() string {
	return "Mobile number saved ✅\n\n" + emailPromptText
}

func formatPrice(p float64) string {
	return fmt.Sprintf("₹%.2f", p)
}

func staffOptions(staff []models.Staff) string {
	lines := make([]string, 0, len(staff))
	for i, s := range staff {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, s.Name))
	}
	return strings.Join(lines, "\n")
}

func serviceOptions(services []models.Service) string {
	lines := make([]string, 0, len(services))
	for i, s := range services {
		lines = append(lines, fmt.Sprintf("%d. %s - %s", i+1, s.Name, formatPrice(s.Price)))
	}
	return strings.Join(lines, "\n")
}

func staffPrompt(header string, staff []models.Staff) string {
	return fmt.Sprintf("%s\n\nPlease select a staff member:\n\n%s\n\nSend only the number (e.g., 1)", header, staffOptions(staff))
}

func staffRetry(staff []models.Staff) string {
	return fmt.Sprintf("Please send a number between 1 and %d:\n\n%s\n\nSend only the number (e.g., 1)", len(staff), staffOptions(staff))
}

func datePrompt(staffName string) string {
	return fmt.Sprintf("Staff: %s ✅\n\nPlease provide the appointment *date*:\n\n%s", staffName, dateInstructions)
}

func dateRetry(err error) string {
	if err == ErrPastDate {
		return "Please select today's date or a future date.\n\n" + dateInstructions
	}
	return "Please send the date in correct format.\n\n" + dateInstructions
}

func timePrompt(date string) string {
	return fmt.Sprintf("Date: %s ✅\n\nPlease provide the *time*:\n\n%s", date, timeInstructions)
}

func timeRetry(err error) string {
	switch err {
	case ErrOutOfRange:
		return "Please enter a valid time (00:00 to 23:59, or 1:00 to 12:59 with AM/PM).\n\n" + timeInstructions
	case ErrPastTime:
		return "Please select a future time.\n\n" + timeInstructions
	default:
		return "Please send the time in correct format.\n\n" + timeInstructions
	}
}

func servicesPrompt(header string, services []models.Service) string {
	return fmt.Sprintf("%s\n\nPlease select *services* (one or more):\n\n%s\n\nFor multiple services, separate numbers with comma (e.g., 1,2,3)",
		header, serviceOptions(services))
}

func servicesRetry(services []models.Service) string {
	return fmt.Sprintf("Please select numbers between 1 and %d:\n\n%s\n\nFor multiple services, separate numbers with comma (e.g., 1,2,3)",
		len(services), serviceOptions(services))
}

func selectedServicesText(selected []models.SelectedService) string {
	parts := make([]string, 0, len(selected))
	for _, s := range selected {
		parts = append(parts, fmt.Sprintf("%s (%s)", s.Name, formatPrice(s.Price)))
	}
	return strings.Join(parts, ", ")
}

func notesPrompt(data models.BookingData) string {
	return fmt.Sprintf("Services: %s ✅\n\nTotal amount: %s\n\n%s",
		selectedServicesText(data.Services), formatPrice(data.TotalPrice), notesPromptText)
}

func notesOrNone(notes string) string {
	if notes == "" {
		return "None"
	}
	return notes
}

func summaryText(data models.BookingData) string {
	var b strings.Builder
	b.WriteString("📋 *Appointment Summary:*\n\n")
	fmt.Fprintf(&b, "👤 *Customer:* %s\n", data.Name)
	fmt.Fprintf(&b, "📱 *Mobile:* %s\n", data.Mobile)
	if data.Email != "" {
		fmt.Fprintf(&b, "📧 *Email:* %s\n", data.Email)
	}
	fmt.Fprintf(&b, "💇 *Staff:* %s\n", data.StaffName)
	if data.AppointmentAt != nil {
		fmt.Fprintf(&b, "📅 *Date:* %s\n", data.AppointmentAt.Format(displayDate))
		fmt.Fprintf(&b, "⏰ *Time:* %s\n", data.AppointmentAt.Format(displayTime))
	}
	fmt.Fprintf(&b, "💆 *Services:* %s\n", strings.Join(data.ServiceNames(), ", "))
	fmt.Fprintf(&b, "💰 *Total:* %s\n", formatPrice(data.TotalPrice))
	fmt.Fprintf(&b, "📝 *Notes:* %s\n\n", notesOrNone(data.Notes))
	b.WriteString("Is this correct? Send 'yes' to confirm, or 'no' to cancel.")
	return b.String()
}

func confirmationText(appointmentID uint, data models.BookingData) string {
	var b strings.Builder
	b.WriteString("✅ *Appointment Confirmed!*\n\nYour appointment has been successfully booked!\n\n")
	b.WriteString("📋 *Appointment Details:*\n")
	if data.AppointmentAt != nil {
		fmt.Fprintf(&b, "• Date: %s\n", data.AppointmentAt.Format(displayDate))
		fmt.Fprintf(&b, "• Time: %s\n", data.AppointmentAt.Format(displayTime))
	}
	fmt.Fprintf(&b, "• Staff: %s\n", data.StaffName)
	fmt.Fprintf(&b, "• Services: %s\n", strings.Join(data.ServiceNames(), ", "))
	fmt.Fprintf(&b, "• Total: %s\n", formatPrice(data.TotalPrice))
	fmt.Fprintf(&b, "• Notes: %s\n\n", notesOrNone(data.Notes))
	fmt.Fprintf(&b, "Appointment ID: #%d\n\n", appointmentID)
	b.WriteString("Please arrive on time. Thank you! 🙏")
	return b.String()
}
