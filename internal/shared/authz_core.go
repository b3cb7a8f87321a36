package shared

// Permission names stored in the permissions catalog.
const (
	PermCreateClub        = "CREATE_CLUB"
	PermManageClub        = "MANAGE_CLUB"
	PermCreateTask        = "CREATE_TASK"
	PermManageTasks       = "MANAGE_TASKS"
	PermCreateMeeting     = "CREATE_MEETING"
	PermManageMeetings    = "MANAGE_MEETINGS"
	PermUploadFile        = "UPLOAD_FILE"
	PermDeleteFile        = "DELETE_FILE"
	PermSendNotification  = "SEND_NOTIFICATION"
	PermManagePermissions = "MANAGE_PERMISSIONS"
	PermManageUsers       = "MANAGE_USERS"
	PermViewAdmin         = "VIEW_ADMIN"
)

// CoreScopes lists every permission the application checks.
func CoreScopes() []string {
	return []string{
		PermCreateClub,
		PermManageClub,
		PermCreateTask,
		PermManageTasks,
		PermCreateMeeting,
		PermManageMeetings,
		PermUploadFile,
		PermDeleteFile,
		PermSendNotification,
		PermManagePermissions,
		PermManageUsers,
		PermViewAdmin,
	}
}
