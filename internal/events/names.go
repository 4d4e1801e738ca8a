package events

// Event names emitted by the repository and update managers.
const (
	RepositoryAdded         = "repositoryAdded"
	RepositoryUpdated       = "repositoryUpdated"
	RepositoryRemoved       = "repositoryRemoved"
	RepositoryToggled       = "repositoryToggled"
	RepositorySyncStarted   = "repositorySyncStarted"
	RepositorySyncCompleted = "repositorySyncCompleted"
	RepositoryError         = "repositoryError"
	AllRepositoriesSynced   = "allRepositoriesSynced"

	UpdateCheckStarted    = "updateCheckStarted"
	UpdateAvailable       = "updateAvailable"
	UpdateCheckCompleted  = "updateCheckCompleted"
	UpdateCheckError      = "updateCheckError"
	UpdateStarted         = "updateStarted"
	UpdateCompleted       = "updateCompleted"
	UpdateError           = "updateError"
	MassUpdateStarted     = "massUpdateStarted"
	MassUpdateCompleted   = "massUpdateCompleted"
	UpdateSettingsChanged = "updateSettingsChanged"
)
