package session

// GenerateIDFrom exposes the id generator with an explicit random source.
var GenerateIDFrom = generateID
