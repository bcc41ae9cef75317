package main

import (
	"fmt"

	"deedescrow/crypto"
)

func runListing(c *cli, args []string) error {
	fs := c.flags("listing")
	asset := parseAssetFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireAsset(*asset); err != nil {
		return err
	}
	return c.show("escrow_getListing", map[string]uint64{"assetId": *asset})
}

func runApproval(c *cli, args []string) error {
	return runAddressQuery(c, "approval", "escrow_getApproval", args)
}

func runRefund(c *cli, args []string) error {
	return runAddressQuery(c, "refund", "escrow_getRefund", args)
}

// runAddressQuery handles the queries keyed by an asset and an account.
func runAddressQuery(c *cli, name, method string, args []string) error {
	fs := c.flags(name)
	asset := parseAssetFlag(fs)
	addr := fs.String("address", "", "address to check")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireAsset(*asset); err != nil {
		return err
	}
	if _, err := crypto.ParseAddress(*addr); err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	return c.show(method, map[string]interface{}{"assetId": *asset, "address": *addr})
}

func runBalance(c *cli, args []string) error {
	fs := c.flags("balance")
	asset := parseAssetFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *asset == 0 {
		return c.show("escrow_getBalance", nil)
	}
	return c.show("escrow_getBalance", map[string]uint64{"assetId": *asset})
}

func runOwner(c *cli, args []string) error {
	fs := c.flags("owner")
	asset := parseAssetFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireAsset(*asset); err != nil {
		return err
	}
	return c.show("registry_ownerOf", map[string]uint64{"assetId": *asset})
}

func runEvents(c *cli, args []string) error {
	fs := c.flags("events")
	asset := parseAssetFlag(fs)
	eventType := fs.String("type", "", "filter by event type")
	limit := fs.Int("limit", 0, "maximum number of events")
	after := fs.Int64("after", 0, "only events with an id greater than this")
	if err := fs.Parse(args); err != nil {
		return err
	}
	params := map[string]interface{}{}
	if *asset != 0 {
		params["assetId"] = *asset
	}
	if *eventType != "" {
		params["type"] = *eventType
	}
	if *limit > 0 {
		params["limit"] = *limit
	}
	if *after > 0 {
		params["after"] = *after
	}
	return c.show("escrow_listEvents", params)
}

func (c *cli) show(method string, params interface{}) error {
	raw, err := c.call(c.endpoint, c.token, method, params)
	if err != nil {
		return err
	}
	return c.print(raw)
}
