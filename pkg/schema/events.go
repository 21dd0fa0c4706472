package schema

// Event type constants for canvas change notifications.
const (
	EventElementCreated       = "element_created"
	EventElementUpdated       = "element_updated"
	EventElementDeleted       = "element_deleted"
	EventElementsBatchCreated = "elements_batch_created"
	EventElementsSynced       = "elements_synced"
	EventDiagramConverted     = "diagram_converted"
	EventSyncStatus           = "sync_status"
)

// Element sources recorded on stored elements.
const (
	SourceAPI     = "api"
	SourceDiagram = "diagram"
	SourceMCP     = "mcp"
	SourceSync    = "sync"
)
