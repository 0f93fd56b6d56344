package bridge

// Command topics
const (
	TopicAdd      = "SpotifyCurrentlyPlaying/Add"
	TopicControl  = "SpotifyControl"
	TopicKitchen  = "PlaySpotifyInKitchen"
	TopicPopulate = "PopulateSpotifyDownloadPlaylist"
)

// Outbound topics
const (
	TopicAddResult        = "SpotifyCurrentlyPlaying/Result"
	TopicPopulateSuccess  = TopicPopulate + "/Success"
	TopicTracksToDownload = "TracksToDownload"
)

// ErrorTopic returns the topic failures of a command topic are published to.
func ErrorTopic(topic string) string {
	if topic == TopicAdd {
		return "SpotifyCurrentlyPlaying/Error"
	}
	return topic + "/Error"
}
