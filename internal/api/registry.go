package api

import (
	"net/http"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/registry"
	"jetton-ledger/internal/vm"
)

// DeployOrganizationsRequest deploys the organizations registry labelled Label.
type DeployOrganizationsRequest struct {
	From  domain.Address `json:"from"`
	Label string         `json:"label"`
}

// DeployMembershipRequest deploys a membership registry run by Admin.
type DeployMembershipRequest struct {
	Admin domain.Address `json:"admin"`
}

// MembersView lists the holders of one organization.
type MembersView struct {
	Organization domain.Address   `json:"organization"`
	Members      []domain.Address `json:"members"`
}

func (s *Server) deployOrganizations(w http.ResponseWriter, r *http.Request) error {
	var req DeployOrganizationsRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	ext, addr := s.requests.DeployOrganizations(req.From, req.Label)
	return s.submit(w, r, ext, addr)
}

func (s *Server) organizations(w http.ResponseWriter, r *http.Request) error {
	reg, err := pathAddress(r, "registry")
	if err != nil {
		return err
	}
	orgs, err := s.orgs.Organizations(r.Context(), reg)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, orgs)
	return nil
}

// organizationAction handles create, remove, owner and site.
func (s *Server) organizationAction(w http.ResponseWriter, r *http.Request) error {
	reg, err := pathAddress(r, "registry")
	if err != nil {
		return err
	}
	var req OrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	var ext vm.ExternalRequest
	switch action := r.PathValue("action"); action {
	case "create":
		ext = s.requests.Create(req.From, reg, registry.CreateOrganization{QueryID: req.QueryID, Account: req.Account, Site: req.Site})
	case "remove":
		ext = s.requests.Remove(req.From, reg, registry.RemoveOrganization{QueryID: req.QueryID, Account: req.Account})
	case "owner":
		ext = s.requests.ChangeOwner(req.From, reg, registry.ChangeOwner{QueryID: req.QueryID, Account: req.Account, NewOwner: req.NewOwner})
	case "site":
		ext = s.requests.ChangeSite(req.From, reg, registry.ChangeSite{QueryID: req.QueryID, Account: req.Account, Site: req.Site})
	default:
		return badRequest("unknown organization action %q", action)
	}
	return s.submit(w, r, ext, reg)
}

func (s *Server) deployMembership(w http.ResponseWriter, r *http.Request) error {
	var req DeployMembershipRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	ext, addr := s.requests.DeployMembership(req.Admin)
	return s.submit(w, r, ext, addr)
}

func (s *Server) members(w http.ResponseWriter, r *http.Request) error {
	reg, err := pathAddress(r, "registry")
	if err != nil {
		return err
	}
	org, err := pathAddress(r, "org")
	if err != nil {
		return err
	}
	members, err := s.orgs.Members(r.Context(), reg, org)
	if err != nil {
		return err
	}
	if members == nil {
		members = []domain.Address{}
	}
	writeJSON(w, http.StatusOK, MembersView{Organization: org, Members: members})
	return nil
}

// membershipAction handles invite, exclude and admin.
func (s *Server) membershipAction(w http.ResponseWriter, r *http.Request) error {
	reg, err := pathAddress(r, "registry")
	if err != nil {
		return err
	}
	var req MembershipRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	change := registry.MembershipChange{QueryID: req.QueryID, Organization: req.Organization, Holder: req.Holder}
	var ext vm.ExternalRequest
	switch action := r.PathValue("action"); action {
	case "invite":
		ext = s.requests.Invite(req.Admin, reg, change)
	case "exclude":
		ext = s.requests.Exclude(req.Admin, reg, change)
	case "admin":
		ext = s.requests.ChangeAdmin(req.Admin, reg, registry.ChangeAdmin{QueryID: req.QueryID, NewAdmin: req.NewAdmin})
	default:
		return badRequest("unknown membership action %q", action)
	}
	return s.submit(w, r, ext, reg)
}
