package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ananth-NQI/salonbook-backend/internal/models"
	"github.com/Ananth-NQI/salonbook-backend/internal/storage"
)

var sampleStaff = []models.Staff{
	{Name: "Priya Sharma", Mobile: "9800000001", Specialization: "Hair styling, colouring", IsActive: true},
	{Name: "Anjali Verma", Mobile: "9800000002", Specialization: "Skin care, facials", IsActive: true},
	{Name: "Rahul Nair", Mobile: "9800000003", Specialization: "Men's grooming", IsActive: true},
}

var sampleServices = []models.Service{
	{Name: "Haircut", Description: "Cut and style", Price: 300, Duration: 30, IsActive: true},
	{Name: "Hair Colour", Description: "Global colour", Price: 1500, Duration: 90, IsActive: true},
	{Name: "Facial", Description: "Cleanse and glow facial", Price: 800, Duration: 60, IsActive: true},
	{Name: "Manicure", Description: "Classic manicure", Price: 400, Duration: 45, IsActive: true},
	{Name: "Beard Trim", Description: "Trim and shape", Price: 150, Duration: 15, IsActive: true},
}

// seedDirectory inserts the sample staff and services into an empty
// directory. Existing entries are left untouched.
func seedDirectory(ctx context.Context, store storage.Store) (staff, services int, err error) {
	existingStaff, err := store.ListActiveStaff(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list staff: %w", err)
	}
	if len(existingStaff) == 0 {
		for _, s := range sampleStaff {
			s := s
			if err := store.CreateStaff(ctx, &s); err != nil {
				return staff, services, fmt.Errorf("create staff %q: %w", s.Name, err)
			}
			staff++
		}
	}

	existingServices, err := store.ListActiveServices(ctx)
	if err != nil {
		return staff, services, fmt.Errorf("list services: %w", err)
	}
	if len(existingServices) == 0 {
		for _, s := range sampleServices {
			s := s
			if err := store.CreateService(ctx, &s); err != nil {
				return staff, services, fmt.Errorf("create service %q: %w", s.Name, err)
			}
			services++
		}
	}
	return staff, services, nil
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert sample staff and services when none exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(wireOptions{offline: true})
			if err != nil {
				return err
			}
			defer a.Close()

			staff, services, err := seedDirectory(cmd.Context(), a.store)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d staff and %d services\n", staff, services)
			return nil
		},
	}
}
