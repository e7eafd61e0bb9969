package main

import "context"

// Role classifies what a logged-in user is allowed to see and do.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleClinic  Role = "clinic"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// Identity is the authenticated caller passed into every pipeline.
// PatientScopeID is only set for patient users and names the PatientID
// whose records they may see. Immutable for the session lifetime.
type Identity struct {
	UserID         string `json:"user_id"`
	Role           Role   `json:"role"`
	PatientScopeID string `json:"patient_id,omitempty"`
}

// User corresponds to a Firestore document in the "users" collection.
// Credentials are compared by the identity store lookup; the pipelines
// never see the password field.
type User struct {
	Username  string `firestore:"username" json:"username"`
	Password  string `firestore:"password" json:"-"`
	Role      string `firestore:"role" json:"role"`
	PatientID string `firestore:"patient_id" json:"patient_id"`
}

// IdentityStore authenticates a username/password pair against the user
// collection. Failed lookups return ErrDenied.
type IdentityStore interface {
	Authenticate(ctx context.Context, username, password string) (*Identity, error)
}
