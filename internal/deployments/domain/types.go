package domain

import "time"

// Deployment is the domain representation of a recorded deployment.
type Deployment struct {
	ID              string    `json:"id"`
	Contract        string    `json:"contract"`
	Network         string    `json:"network"`
	ChainID         int64     `json:"chainId"`
	Address         string    `json:"address,omitempty"`
	DeployerAddress string    `json:"deployerAddress,omitempty"`
	TxHash          string    `json:"txHash"`
	BlockNumber     int64     `json:"blockNumber"`
	GasUsed         int64     `json:"gasUsed"`
	Status          string    `json:"status"`
	CompilerVersion string    `json:"compilerVersion,omitempty"`
	Verified        bool      `json:"verified"`
	VerifyDetail    string    `json:"verifyDetail,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// RecordRequest carries everything needed to record a deployment outcome.
type RecordRequest struct {
	Contract        string
	Network         string
	ChainID         int64
	Address         string
	DeployerAddress string
	TxHash          string
	BlockNumber     int64
	GasUsed         int64
	Status          string
	CompilerVersion string
	ConstructorArgs string
}

// ListFilter contains filter options for listing deployments.
type ListFilter struct {
	Network  string
	Contract string
	Verified *bool
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ListResult is a page of deployments.
type ListResult struct {
	Deployments []Deployment
	HasMore     bool
	NextCursor  string
}
