package mqtt

import "fmt"

// TopicPrefix is the root of every knxlink topic.
//
// Layout: knxlink/{link_id}/{kind}[/...]
const TopicPrefix = "knxlink"

// Topics provides builders for knxlink MQTT topics.
// Using these helpers keeps publisher and subscriber naming in step.
//
//	topics := mqtt.Topics{}
//	topics.Group("hall", "1/2/3") // "knxlink/hall/group/1/2/3"
type Topics struct{}

// Status returns the retained online/offline topic of a link (also the LWT).
//
// Example: knxlink/hall/status
func (Topics) Status(linkID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, linkID)
}

// Health returns the periodic channel health topic.
//
// Example: knxlink/hall/health
func (Topics) Health(linkID string) string {
	return fmt.Sprintf("%s/%s/health", TopicPrefix, linkID)
}

// Channel returns the topic for channel lifecycle events (open, closed).
//
// Example: knxlink/hall/channel
func (Topics) Channel(linkID string) string {
	return fmt.Sprintf("%s/%s/channel", TopicPrefix, linkID)
}

// Group returns the topic for telegrams addressed to a KNX group address.
// The address keeps its 3-level slashes, so each level is a topic level.
//
// Example: knxlink/hall/group/1/2/3
func (Topics) Group(linkID, groupAddress string) string {
	return fmt.Sprintf("%s/%s/group/%s", TopicPrefix, linkID, groupAddress)
}

// Datapoint returns the topic for object server datapoint values.
//
// Example: knxlink/hall/datapoint/12
func (Topics) Datapoint(linkID string, id uint16) string {
	return fmt.Sprintf("%s/%s/datapoint/%d", TopicPrefix, linkID, id)
}

// Service returns the topic for decoded services without a finer topic
// (server item responses, error responses).
//
// Example: knxlink/hall/service
func (Topics) Service(linkID string) string {
	return fmt.Sprintf("%s/%s/service", TopicPrefix, linkID)
}

// Command returns the topic a link consumes send requests from.
//
// Example: knxlink/hall/command
func (Topics) Command(linkID string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefix, linkID)
}

// Response returns the topic carrying the outcome of one command.
//
// Example: knxlink/hall/response/4f9c2a1e-...
func (Topics) Response(linkID, requestID string) string {
	return fmt.Sprintf("%s/%s/response/%s", TopicPrefix, linkID, requestID)
}

// AllGroups returns a pattern matching every group telegram of a link.
//
// Pattern: knxlink/hall/group/#
func (Topics) AllGroups(linkID string) string {
	return fmt.Sprintf("%s/%s/group/#", TopicPrefix, linkID)
}

// AllStatus returns a pattern matching the status topic of every link.
//
// Pattern: knxlink/+/status
func (Topics) AllStatus() string {
	return fmt.Sprintf("%s/+/status", TopicPrefix)
}

// AllTopics returns a pattern matching all knxlink topics.
//
// Pattern: knxlink/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
