package cli

import (
	"github.com/spf13/cobra"

	"github.com/privgraph/modelhub/internal/model"
	"github.com/privgraph/modelhub/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		Run:   runProjectCreate,
	}
	create.Flags().String("owner", "", "Owner user id (required)")
	create.Flags().String("task", "", "Task name")
	create.Flags().String("description", "", "Description")
	create.Flags().String("privacy", "Private", "Privacy status: Private or Public")
	create.MarkFlagRequired("owner")

	get := &cobra.Command{
		Use:   "get <project-id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		Run:   runProjectGet,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Run:   runProjectList,
	}
	list.Flags().String("user", "", "Only projects owned by or shared with this user")
	list.Flags().Bool("public", false, "Only public projects")
	list.Flags().IntP("limit", "l", 100, "Max results")

	collab := &cobra.Command{
		Use:   "add-collaborator <project-id> <user-id>",
		Short: "Share a project with a user",
		Args:  cobra.ExactArgs(2),
		Run:   runProjectAddCollaborator,
	}

	cmd.AddCommand(create, get, list, collab)
	RootCmd.AddCommand(cmd)
}

func runProjectCreate(cmd *cobra.Command, args []string) {
	owner, _ := cmd.Flags().GetString("owner")
	task, _ := cmd.Flags().GetString("task")
	desc, _ := cmd.Flags().GetString("description")
	privacy, _ := cmd.Flags().GetString("privacy")

	c := loadConfig()
	s, err := openStore(cmd.Context(), c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p, err := s.CreateProject(cmd.Context(), store.CreateProjectParams{
		Name:          args[0],
		TaskName:      task,
		Description:   desc,
		PrivacyStatus: privacy,
		OwnerID:       owner,
	})
	if err != nil {
		exitErr("create project", err)
	}
	printJSON(p)
}

func runProjectGet(cmd *cobra.Command, args []string) {
	c := loadConfig()
	s, err := openStore(cmd.Context(), c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p, err := s.GetProject(cmd.Context(), args[0])
	if err != nil {
		exitErr("get project", err)
	}
	printJSON(p)
}

func runProjectList(cmd *cobra.Command, args []string) {
	user, _ := cmd.Flags().GetString("user")
	public, _ := cmd.Flags().GetBool("public")
	limit, _ := cmd.Flags().GetInt("limit")

	c := loadConfig()
	s, err := openStore(cmd.Context(), c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	projects, err := s.ListProjects(cmd.Context(), store.ListProjectsParams{
		OwnerID:    user,
		PublicOnly: public,
		Limit:      limit,
	})
	if err != nil {
		exitErr("list projects", err)
	}
	if projects == nil {
		projects = []model.Project{}
	}
	printJSON(projects)
}

func runProjectAddCollaborator(cmd *cobra.Command, args []string) {
	c := loadConfig()
	s, err := openStore(cmd.Context(), c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p, err := s.AddCollaborator(cmd.Context(), args[0], args[1])
	if err != nil {
		exitErr("add collaborator", err)
	}
	printJSON(p)
}
