package i18n

var ptBRCatalog = &Catalog{
	locale: "pt-BR",
	messages: map[Code]string{
		CodeUnauthenticated: "Você precisa estar conectado para fazer isso",
		CodeForbidden:       "Você só pode alterar seu próprio {{.Resource}}",

		CodeInvalidArgument: "A requisição é inválida",
		CodeInvalidContent:  "Conteúdo da publicação {{.Reason}}",
		CodeInvalidUsername: "Nome de usuário {{.Reason}}",
		CodeInvalidProfile:  "Perfil {{.Reason}}",

		CodeAlreadyExists: "Já existe um perfil para esta conta",
		CodeUsernameTaken: "O nome de usuário {{.Username}} já está em uso",

		CodeAlreadyFollowing: "Você já segue este usuário",
		CodeNotFollowing:     "Você não segue este usuário",
		CodeSelfFollow:       "Você não pode seguir a si mesmo",

		CodeNotFound: "O recurso solicitado ({{.Resource}}) não foi encontrado",
		CodeInternal: "Algo deu errado, tente novamente",
	},
}
