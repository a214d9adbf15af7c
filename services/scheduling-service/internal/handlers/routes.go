package handlers

import (
	"net/http"

	"github.com/tidyhome/scheduler/libs/auth"
)

// Routes bundles what Register needs. Instrument may be nil.
type Routes struct {
	Scheduling   *SchedulingHandler
	Onboarding   *OnboardingHandler
	Authenticate func(http.Handler) http.Handler
	Instrument   func(route string, h http.Handler) http.Handler
}

// Register mounts the public and authenticated API on mux.
func Register(mux *http.ServeMux, rt Routes) {
	handle := func(pattern, route string, h http.Handler, roles ...auth.Role) {
		if len(roles) > 0 {
			h = rt.Authenticate(auth.RequireRole(roles...)(h))
		}
		if rt.Instrument != nil {
			h = rt.Instrument(route, h)
		}
		mux.Handle(pattern, h)
	}
	s, o := rt.Scheduling, rt.Onboarding
	provider := auth.RoleProvider
	homeowner := auth.RoleHomeowner
	admin := auth.RoleAdmin

	handle("GET /api/v1/public/slots", "slots.list", http.HandlerFunc(s.Slots))

	handle("POST /api/v1/bookings", "bookings.create", http.HandlerFunc(s.CreateBooking), homeowner)
	handle("GET /api/v1/bookings", "bookings.list", http.HandlerFunc(s.ListBookings), provider, homeowner)
	handle("POST /api/v1/bookings/confirm", "bookings.confirm", http.HandlerFunc(s.ConfirmBooking), provider)
	handle("POST /api/v1/bookings/cancel", "bookings.cancel", http.HandlerFunc(s.CancelBooking), provider, homeowner, admin)

	handle("GET /api/v1/provider/availability", "availability.get", http.HandlerFunc(s.GetWeeklyAvailability), provider)
	handle("PUT /api/v1/provider/availability", "availability.put", http.HandlerFunc(s.PutWeeklyAvailability), provider)

	handle("GET /api/v1/provider/unavailability", "unavailability.list", http.HandlerFunc(s.ListUnavailability), provider)
	handle("POST /api/v1/provider/unavailability", "unavailability.add", http.HandlerFunc(s.AddUnavailability), provider)
	handle("DELETE /api/v1/provider/unavailability", "unavailability.remove", http.HandlerFunc(s.RemoveUnavailability), provider)

	handle("GET /api/v1/provider/profile", "profile.get", http.HandlerFunc(s.GetProfile), provider)
	handle("PUT /api/v1/provider/profile", "profile.put", http.HandlerFunc(s.PutProfile), provider)

	handle("GET /api/v1/provider/onboarding", "onboarding.get", http.HandlerFunc(o.Progress), provider)
	handle("POST /api/v1/provider/onboarding/complete", "onboarding.complete", http.HandlerFunc(o.CompleteStep), provider)
}
