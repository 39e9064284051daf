package push

import (
	"fmt"
	"net/url"
)

// UpdateResponseTopic is the single subscription carrying every push
// update for the account.
func UpdateResponseTopic(user string) string {
	return fmt.Sprintf("users/%s/update/response", user)
}

// HardwareTopic addresses one physical hardware unit for commands.
func HardwareTopic(user, hardware string) string {
	return fmt.Sprintf("users/%s/update/%s", user, hardware)
}

// SceneTopic is the bare account topic scene activations are mirrored to.
func SceneTopic(user string) string {
	return user
}

// connectUsername builds the MQTT connect username consumed by the AWS
// IoT custom authorizer. The bearer token rides inside it, so this value
// must never be logged.
func connectUsername(user, entryID, authorizerName, token string) string {
	return fmt.Sprintf("%s/%s?x-amz-customauthorizer-name=%s&token=%s",
		user, entryID,
		url.QueryEscape(authorizerName),
		url.QueryEscape("Bearer "+token))
}
