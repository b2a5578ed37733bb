package main

import "github.com/matst80/slask-grid/pkg/types"

type GridResponse struct {
	Records  []*types.Record `json:"records"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}
