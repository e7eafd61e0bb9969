package main

// Action is a pipeline operation the access policy can decide on.
type Action string

const (
	ActionList   Action = "list"
	ActionUpload Action = "upload"
	ActionView   Action = "view"
	ActionDelete Action = "delete"
)

// Allowed is the single authorization decision point consulted by every
// pipeline. It is total and side-effect-free: no store access, no logging.
// rec may be nil for actions that are not about a particular record
// (list, upload). Unrecognized roles are denied everything.
func Allowed(id Identity, action Action, rec *FileRecord) bool {
	switch action {
	case ActionList:
		// Listing is never denied outright; unrecognized roles simply have
		// an empty visibility scope.
		return true
	case ActionUpload:
		return id.Role == RoleAdmin || id.Role == RoleClinic || id.Role == RoleDoctor
	case ActionView:
		switch id.Role {
		case RoleAdmin, RoleClinic, RoleDoctor:
			return true
		case RolePatient:
			// Patients may only view records their list scope covers.
			return rec != nil && Visible(id, rec)
		}
		return false
	case ActionDelete:
		switch id.Role {
		case RoleAdmin, RoleClinic:
			return true
		case RoleDoctor:
			return rec != nil && rec.OwnerUserID == id.UserID
		}
		return false
	}
	return false
}

// Visible reports whether a record falls inside the identity's listing
// scope. Admin and clinic see everything, doctors see what they uploaded,
// patients see records tagged with their own PatientID.
func Visible(id Identity, rec *FileRecord) bool {
	if rec == nil {
		return false
	}
	switch id.Role {
	case RoleAdmin, RoleClinic:
		return true
	case RoleDoctor:
		return rec.OwnerUserID == id.UserID
	case RolePatient:
		return id.PatientScopeID != "" && rec.PatientID == id.PatientScopeID
	}
	return false
}
