package model

import "fmt"

// Topic identifies the semantic kind of a domain event and the shape of its payload.
type Topic string

const (
	TopicConventionReadyToSign          Topic = "ConventionReadyToSign"
	TopicConventionPartiallySigned      Topic = "ConventionPartiallySigned"
	TopicConventionFullySigned          Topic = "ConventionFullySigned"
	TopicConventionAcceptedByCounsellor Topic = "ConventionAcceptedByCounsellor"
	TopicConventionAcceptedByValidator  Topic = "ConventionAcceptedByValidator"
	TopicConventionValidated            Topic = "ConventionValidated"
	TopicConventionRejected             Topic = "ConventionRejected"
	TopicConventionCancelled            Topic = "ConventionCancelled"
	TopicConventionDeprecated           Topic = "ConventionDeprecated"
	TopicConventionRequiresModification Topic = "ConventionRequiresModification"
)

// Topics lists every topic known to the application.
var Topics = []Topic{
	TopicConventionReadyToSign,
	TopicConventionPartiallySigned,
	TopicConventionFullySigned,
	TopicConventionAcceptedByCounsellor,
	TopicConventionAcceptedByValidator,
	TopicConventionValidated,
	TopicConventionRejected,
	TopicConventionCancelled,
	TopicConventionDeprecated,
	TopicConventionRequiresModification,
}

// ParseTopic validates and converts a raw topic name.
func ParseTopic(raw string) (Topic, error) {
	topic := Topic(raw)
	if !topic.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTopic, raw)
	}

	return topic, nil
}

// IsValid reports whether the topic belongs to the closed topic set.
func (t Topic) IsValid() bool {
	for _, known := range Topics {
		if t == known {
			return true
		}
	}

	return false
}

// TopicDef binds a topic to its payload type so that producers and
// subscribers are checked by the compiler.
type TopicDef[P any] struct {
	topic Topic
}

// Topic returns the topic name.
func (d TopicDef[P]) Topic() Topic {
	return d.topic
}

// TriggeredBy identifies who caused a convention event.
type TriggeredBy struct {
	Role Role `json:"role"`
}

// ConventionPayload is carried by every convention topic.
type ConventionPayload struct {
	Convention  Convention   `json:"convention"`
	TriggeredBy *TriggeredBy `json:"triggeredBy,omitempty"`
}

var (
	ConventionReadyToSign          = TopicDef[ConventionPayload]{topic: TopicConventionReadyToSign}
	ConventionPartiallySigned      = TopicDef[ConventionPayload]{topic: TopicConventionPartiallySigned}
	ConventionFullySigned          = TopicDef[ConventionPayload]{topic: TopicConventionFullySigned}
	ConventionAcceptedByCounsellor = TopicDef[ConventionPayload]{topic: TopicConventionAcceptedByCounsellor}
	ConventionAcceptedByValidator  = TopicDef[ConventionPayload]{topic: TopicConventionAcceptedByValidator}
	ConventionValidated            = TopicDef[ConventionPayload]{topic: TopicConventionValidated}
	ConventionRejected             = TopicDef[ConventionPayload]{topic: TopicConventionRejected}
	ConventionCancelled            = TopicDef[ConventionPayload]{topic: TopicConventionCancelled}
	ConventionDeprecated           = TopicDef[ConventionPayload]{topic: TopicConventionDeprecated}
	ConventionRequiresModification = TopicDef[ConventionPayload]{topic: TopicConventionRequiresModification}
)

// ConventionTopics lists the topics carrying a ConventionPayload.
var ConventionTopics = []TopicDef[ConventionPayload]{
	ConventionReadyToSign,
	ConventionPartiallySigned,
	ConventionFullySigned,
	ConventionAcceptedByCounsellor,
	ConventionAcceptedByValidator,
	ConventionValidated,
	ConventionRejected,
	ConventionCancelled,
	ConventionDeprecated,
	ConventionRequiresModification,
}
