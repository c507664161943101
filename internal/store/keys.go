package store

import "fmt"

// none stands in for a missing enterprise or team id in keys.
const none = "none"

// Workspace identifies where an event came from.
type Workspace struct {
	EnterpriseID        string
	TeamID              string
	IsEnterpriseInstall bool
}

// ID returns a stable identifier of the workspace, used to key per-workspace
// caches.
func (w Workspace) ID() string {
	return orNone(w.EnterpriseID) + "-" + orNone(w.TeamID)
}

func orNone(id string) string {
	if id == "" {
		return none
	}
	return id
}

// UserKey returns the key of a user's saved reactions:
// <clientID>/<enterpriseID|none>-<teamID>/<userID>.
func UserKey(clientID, enterpriseID, teamID, userID string) string {
	return fmt.Sprintf("%s/%s-%s/%s", clientID, orNone(enterpriseID), teamID, userID)
}

// installationDir returns the key prefix of a workspace's installation
// records. Org-wide installs are stored without a team.
func installationDir(clientID string, ws Workspace) string {
	team := ws.TeamID
	if ws.IsEnterpriseInstall {
		team = ""
	}
	return fmt.Sprintf("%s/%s-%s/", clientID, orNone(ws.EnterpriseID), orNone(team))
}

func botKey(clientID string, ws Workspace) string {
	return installationDir(clientID, ws) + "bot-latest"
}

func installerKey(clientID string, ws Workspace) string {
	return installationDir(clientID, ws) + "installer-latest"
}

func userInstallerKey(clientID string, ws Workspace, userID string) string {
	return installationDir(clientID, ws) + "installer-" + userID + "-latest"
}
